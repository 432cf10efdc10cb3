package sqlinline

// Every statement starts with a "--sql <uuid>" marker line that SQLRunner
// strips and logs.

const QInsertThumbnailRequest = `--sql 7c1e4b52-0a6f-4d3b-9e2a-1f5c8d7b6a01
insert into thumbnail_requests(
  id,
  original_prompt,
  customizations,
  uploaded_image_path,
  refined_prompt,
  generated_image_path,
  status,
  locale,
  created_at
)
values ($1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9);
`

const QGetThumbnailRequest = `--sql 5b9d2f10-3c47-4e8a-b1d6-2a7e9c0f4b12
select
  id,
  original_prompt,
  customizations,
  uploaded_image_path,
  refined_prompt,
  generated_image_path,
  status,
  locale,
  created_at
from thumbnail_requests
where id = $1;
`

// QUpdateThumbnailRequest merges the non-null arguments into the row and
// returns the full updated record.
const QUpdateThumbnailRequest = `--sql 0e4a8c63-9d21-4f7b-a5c3-6b8e1d2f7a23
update thumbnail_requests
set
  status = coalesce($2, status),
  refined_prompt = coalesce($3, refined_prompt),
  generated_image_path = coalesce($4, generated_image_path),
  updated_at = now()
where id = $1
returning
  id,
  original_prompt,
  customizations,
  uploaded_image_path,
  refined_prompt,
  generated_image_path,
  status,
  locale,
  created_at;
`

// QListThumbnailRequests filters by status when $1 is non-null, oldest first.
const QListThumbnailRequests = `--sql 9f3b6d84-2e15-4a9c-8d7f-4c1a0b5e8d34
select
  id,
  original_prompt,
  customizations,
  uploaded_image_path,
  refined_prompt,
  generated_image_path,
  status,
  locale,
  created_at
from thumbnail_requests
where ($1::text is null or status = $1::text)
order by created_at, id;
`

// SchemaThumbnailRequests is applied by cmd/migrate.
const SchemaThumbnailRequests = `
create table if not exists thumbnail_requests (
  id                   text primary key,
  original_prompt      text        not null,
  customizations       jsonb       not null,
  uploaded_image_path  text,
  refined_prompt       text,
  generated_image_path text,
  status               text        not null default 'pending'
    check (status in ('pending', 'processing', 'completed', 'failed')),
  locale               text        not null default 'en',
  created_at           timestamptz not null default now(),
  updated_at           timestamptz not null default now(),
  constraint completed_has_outputs check (
    status <> 'completed' or (refined_prompt is not null and generated_image_path is not null)
  )
);

create index if not exists thumbnail_requests_status_created_idx
  on thumbnail_requests (status, created_at desc);
`
