package sqlinline

// QRefundFailedTask inserts the refund entry for a FAILED task and flips the
// refunded flag. The refund amount is the task's original debit regardless of
// any partial provider cost. The unique (related_task_id, reason) index turns
// a retried refund into a no-op: inserted reports 0 and nothing changes.
const QRefundFailedTask = `--sql 340b96e7-01a7-4fcc-aecd-fb2f8972eef2
with task as (
    select id, owner_id, credits_debited
    from generation_tasks
    where id = $1::uuid and status = 'FAILED'
),
entry as (
    insert into credit_ledger (id, user_id, delta, reason, related_task_id, idempotency_key, created_at)
    select gen_random_uuid(), owner_id, credits_debited, 'GENERATION_REFUND', id, id::text || ':GENERATION_REFUND', now()
    from task
    on conflict do nothing
    returning id
),
flagged as (
    update generation_tasks
    set refunded = true, updated_at = now()
    where id = $1::uuid and status = 'FAILED'
    returning id
)
select (select count(*) from entry)::int as inserted,
       (select count(*) from flagged)::int as flagged;
`

const QSelectBalance = `--sql 9fcaa468-b6c6-4a13-9afe-94e2b5d8e468
select coalesce(sum(delta), 0)::bigint
from credit_ledger
where user_id = $1::uuid;
`

const QInsertCreditPurchase = `--sql 7cac07c5-5512-4f6f-8183-583ca76e4c3e
insert into credit_ledger (id, user_id, delta, reason, related_task_id, idempotency_key, created_at)
values (gen_random_uuid(), $1::uuid, $2::bigint, 'CREDIT_PURCHASE', null, $3::text, now())
on conflict (idempotency_key) do nothing
returning id;
`

const QSelectLedgerEntries = `--sql 3f0a898c-3891-4f47-91d0-6714ee295ead
select id, user_id, delta, reason, coalesce(related_task_id::text, ''), idempotency_key, created_at
from credit_ledger
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

const QCountLedgerEntries = `--sql c742d4d5-d6a3-43b3-9745-2ff9e3741ea8
select count(*)::int
from credit_ledger
where related_task_id = $1::uuid and reason = $2::text;
`
