package sqlinline

const QListSubscriptions = `--sql 4276c5ab-673b-4451-a1b9-ed5d04447883
select id, endpoint, auth_key, p256dh_key
from subscriptions;
`
