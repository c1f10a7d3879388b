package sqlinline

// QClaimPendingTasks picks a batch of PENDING tasks that have not been polled
// recently. Skipped-lock claiming lets several sweep workers run side by side
// without stepping on each other.
const QClaimPendingTasks = `--sql fa188d6b-3a25-41f6-bf03-ead96f7528dc
with due as (
    select id
    from generation_tasks
    where status = 'PENDING'
      and (last_polled_at is null or last_polled_at < now() - $1::interval)
    order by created_at asc
    for update skip locked
    limit $2::int
)
update generation_tasks
set last_polled_at = now(), updated_at = now()
where id in (select id from due)
returning id, owner_id, coalesce(provider_handle, ''), credits_debited, poll_failures, created_at;
`

// QSelectUnrefundedFailedTasks feeds the refund reconciliation sweep: FAILED
// tasks whose refund has not landed yet, whatever the reason.
const QSelectUnrefundedFailedTasks = `--sql 679470e8-d1a7-4d5f-a8c2-a3b2d19b8e00
select id
from generation_tasks
where status = 'FAILED' and refunded = false
order by completed_at asc
limit $1::int;
`
