package sqlinline

// QPublishDraftTask creates the video from the task's draft asset and flips
// publish_status in one statement. The DRAFT guard on both legs plus the
// unique source_task_id index means a midway failure is retried whole and a
// duplicate publish simply re-reads the existing video.
const QPublishDraftTask = `--sql 63b10234-153f-4610-a34e-cdf207ff7572
with inserted as (
    insert into videos (id, owner_id, video_url, description, hashtags, music_json, source_task_id, created_at)
    select $3::uuid, owner_id, draft_asset_url, $4::text, $5::text[], $6::jsonb, id, now()
    from generation_tasks
    where id = $1::uuid and owner_id = $2::uuid and publish_status = 'DRAFT'
    on conflict (source_task_id) do nothing
    returning id, owner_id, video_url, description, hashtags, music_json, source_task_id, created_at
),
flagged as (
    update generation_tasks
    set publish_status = 'PUBLISHED', updated_at = now()
    where id = $1::uuid and owner_id = $2::uuid and publish_status = 'DRAFT'
    returning id
)
select id, owner_id, video_url, description, hashtags, music_json, source_task_id, created_at
from inserted
union all
select v.id, v.owner_id, v.video_url, v.description, v.hashtags, v.music_json, v.source_task_id, v.created_at
from videos v
where v.source_task_id = $1::uuid and v.owner_id = $2::uuid;
`

const QSelectVideoByTask = `--sql 500bf22d-d583-42c9-b25a-496785e76fab
select id, owner_id, video_url, description, hashtags, music_json, source_task_id, created_at
from videos
where source_task_id = $1::uuid and owner_id = $2::uuid;
`

const QRejectDraftTask = `--sql 281cf84f-60f7-430e-84fe-450f2b105a12
update generation_tasks
set publish_status = 'REJECTED', updated_at = now()
where id = $1::uuid and owner_id = $2::uuid and publish_status = 'DRAFT'
returning id;
`

const QSelectTaskDecisionState = `--sql 21a9e77c-5d59-4ccf-b5d9-0943c3bf1dd5
select status, coalesce(publish_status, '')
from generation_tasks
where id = $1::uuid and owner_id = $2::uuid;
`

const QListPublishedVideos = `--sql 9fb4d7e2-16f8-4aaa-a93d-d8e44ab9696e
select id, owner_id, video_url, description, hashtags, music_json, source_task_id, created_at
from videos
order by created_at desc
limit $1::int;
`
