package sqlinline

// Schema creates the tables used by the PostgreSQL metadata backend. Every
// statement is idempotent.
const Schema = `--sql cefe140a-49fe-4d16-a15a-d2e821e6ea66
create table if not exists arts (
  id uuid primary key,
  caller_id text not null default '',
  art_name text not null default '',
  artist_name text not null default '',
  description text not null default '',
  image_url text not null,
  created_at timestamptz not null default now()
);
create table if not exists subscriptions (
  id text primary key,
  endpoint text not null,
  auth_key text not null,
  p256dh_key text not null,
  created_at timestamptz not null default now()
);
`
