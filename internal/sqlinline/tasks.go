package sqlinline

// QCreateTaskWithDebit atomically debits the owner's credit ledger and
// creates the PENDING task. The advisory lock serializes debits per user so
// the balance guard cannot be raced below zero. No row comes back when the
// balance is insufficient.
const QCreateTaskWithDebit = `--sql 98a12a17-103b-4acc-bac6-7e6a61f62763
with acct_lock as (
    select pg_advisory_xact_lock(hashtext($2::text)) as locked
),
balance as (
    select coalesce(sum(delta), 0)::bigint as amount
    from credit_ledger, acct_lock
    where user_id = $2::uuid
),
debit as (
    insert into credit_ledger (id, user_id, delta, reason, related_task_id, idempotency_key, created_at)
    select gen_random_uuid(), $2::uuid, -$7::bigint, 'GENERATION_DEBIT', $1::uuid, $1::text || ':GENERATION_DEBIT', now()
    from balance
    where balance.amount >= $7::bigint
    returning id
),
task as (
    insert into generation_tasks (id, owner_id, prompt, model, duration_seconds, aspect_ratio, status, credits_debited, created_at, updated_at)
    select $1::uuid, $2::uuid, $3::text, $4::text, $5::int, $6::text, 'PENDING', $7::bigint, now(), now()
    from debit
    returning id
)
select task.id, balance.amount - $7::bigint as remaining
from task, balance;
`

const QAttachProviderHandle = `--sql e3689e1d-2bf5-4642-ab81-695b2feeb977
update generation_tasks
set provider_handle = $2::text, updated_at = now()
where id = $1::uuid and status = 'PENDING';
`

const QSelectTaskForOwner = `--sql 90dec5a8-0657-48b2-81f6-fc030b752edc
select id, owner_id, prompt, model, duration_seconds, aspect_ratio,
       status, coalesce(publish_status, ''), coalesce(draft_asset_url, ''),
       coalesce(provider_handle, ''), coalesce(provider_cost, 0),
       coalesce(error_kind, ''), coalesce(error_detail, ''),
       credits_debited, refunded, poll_failures, created_at, completed_at
from generation_tasks
where id = $1::uuid and owner_id = $2::uuid;
`

const QSelectTask = `--sql 7a6caf87-a0a6-405d-9342-fc477c58839a
select id, owner_id, prompt, model, duration_seconds, aspect_ratio,
       status, coalesce(publish_status, ''), coalesce(draft_asset_url, ''),
       coalesce(provider_handle, ''), coalesce(provider_cost, 0),
       coalesce(error_kind, ''), coalesce(error_detail, ''),
       credits_debited, refunded, poll_failures, created_at, completed_at
from generation_tasks
where id = $1::uuid;
`

// QMarkTaskSucceeded applies the PENDING->SUCCEEDED transition. The status
// guard makes it a compare-and-swap: concurrent pollers race harmlessly and
// only one caller sees a returned row.
const QMarkTaskSucceeded = `--sql 72340639-17eb-46d0-888c-2ea685b24ca5
update generation_tasks
set status = 'SUCCEEDED',
    publish_status = 'DRAFT',
    draft_asset_url = $2::text,
    provider_cost = $3::bigint,
    completed_at = now(),
    updated_at = now()
where id = $1::uuid and status = 'PENDING'
returning id;
`

const QMarkTaskFailed = `--sql d3026f79-dd20-45b2-8431-7438f0a2a2ca
update generation_tasks
set status = 'FAILED',
    error_kind = $2::text,
    error_detail = $3::text,
    provider_cost = $4::bigint,
    completed_at = now(),
    updated_at = now()
where id = $1::uuid and status = 'PENDING'
returning id;
`

const QRecordPollFailure = `--sql ef039035-5ea6-4379-8b03-9592c8db9bbc
update generation_tasks
set poll_failures = poll_failures + 1, last_polled_at = now(), updated_at = now()
where id = $1::uuid and status = 'PENDING'
returning poll_failures;
`

const QResetPollFailures = `--sql 2374215c-8fc9-46f8-8280-834223394a94
update generation_tasks
set poll_failures = 0, last_polled_at = now(), updated_at = now()
where id = $1::uuid and status = 'PENDING';
`
