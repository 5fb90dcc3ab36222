package sqlinline

const QCreateGenerationHistory = `--sql 3f6a1c2e-8d4b-4e7a-9c1f-5b2d7e8a9f01
create table if not exists generation_history (
  id uuid primary key,
  job_id text not null,
  prompt text not null,
  negative_prompt text not null default '',
  image_urls jsonb not null default '[]'::jsonb,
  resolution text not null default '',
  model text not null default '',
  duration_ms bigint not null default 0,
  created_at timestamptz not null default now()
);
`

const QInsertGenerationHistory = `--sql 8c2e4b6d-1a3f-4d5e-8b7c-9e0f1a2b3c4d
insert into generation_history(id, job_id, prompt, negative_prompt, image_urls, resolution, model, duration_ms, created_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::jsonb, $6::text, $7::text, $8::bigint, $9::timestamptz);
`

const QTrimGenerationHistory = `--sql 5d7f9a1b-3c5e-4f70-a2b4-c6d8e0f1a3b5
delete from generation_history
where id in (
  select id from generation_history
  order by created_at desc, id desc
  offset $1::int
);
`

const QListGenerationHistory = `--sql 1b3d5f7a-9c0e-4a2b-8d4f-6a8c0e2b4d6f
select id::text, job_id, prompt, negative_prompt, image_urls, resolution, model, duration_ms, created_at
from generation_history
order by created_at desc, id desc
limit $1::int;
`

const QGetGenerationHistory = `--sql 7e9a1c3e-5b7d-4f9a-b1c3-d5e7f9a1b3c5
select id::text, job_id, prompt, negative_prompt, image_urls, resolution, model, duration_ms, created_at
from generation_history
where id = $1::uuid;
`

const QDeleteGenerationHistory = `--sql 2c4e6a8b-0d2f-4b6d-9e1a-3c5e7a9b1d3f
delete from generation_history where id = $1::uuid;
`

const QClearGenerationHistory = `--sql 9a1b3c5d-7e9f-4a1b-8c3d-5e7f9a1b3c5d
delete from generation_history;
`
