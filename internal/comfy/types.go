package comfy

import "sort"

// QueueSnapshot is a point-in-time read of the remote queue. Order is kept
// as reported by the service.
type QueueSnapshot struct {
	Running []string
	Pending []string
}

// IsRunning reports whether the prompt is currently executing.
func (s QueueSnapshot) IsRunning(promptID string) bool {
	return indexOf(s.Running, promptID) >= 0
}

// PendingIndex returns the zero-based index of the prompt in the pending
// list, or -1.
func (s QueueSnapshot) PendingIndex(promptID string) int {
	return indexOf(s.Pending, promptID)
}

// Contains reports whether the prompt appears in either list.
func (s QueueSnapshot) Contains(promptID string) bool {
	return s.IsRunning(promptID) || s.PendingIndex(promptID) >= 0
}

// Busy reports whether the service holds any work at all.
func (s QueueSnapshot) Busy() bool {
	return len(s.Running) > 0 || len(s.Pending) > 0
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// ImageRef identifies one output file on the remote service.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the output record of a single graph node.
type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// HistoryStatus is the execution summary attached to a history record.
type HistoryStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// HistoryEntry is the result record of one prompt.
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  *HistoryStatus        `json:"status,omitempty"`
}

// Failed reports whether the service recorded an execution error.
func (e *HistoryEntry) Failed() bool {
	return e != nil && e.Status != nil && e.Status.StatusStr == "error"
}

// FirstImages returns the images of the first node, in node id order, that
// produced at least one image.
func (e *HistoryEntry) FirstImages() []ImageRef {
	if e == nil || len(e.Outputs) == 0 {
		return nil
	}
	nodeIDs := make([]string, 0, len(e.Outputs))
	for id := range e.Outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeLess(nodeIDs[i], nodeIDs[j]) })
	for _, id := range nodeIDs {
		if images := e.Outputs[id].Images; len(images) > 0 {
			return images
		}
	}
	return nil
}

// nodeLess puts numeric node ids first in numeric order ("9" before "10"),
// then every other id (such as "12:3") in string order.
func nodeLess(a, b string) bool {
	da, db := isDigits(a), isDigits(b)
	switch {
	case da && db:
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	case da != db:
		return da
	default:
		return a < b
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type promptRequest struct {
	Prompt   any    `json:"prompt"`
	ClientID string `json:"client_id,omitempty"`
}

type promptResponse struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
	Error      any            `json:"error"`
}
