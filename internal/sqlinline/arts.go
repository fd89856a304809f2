package sqlinline

const QUpsertArt = `--sql 7604797d-b4dc-42e8-87f8-7224c6517671
insert into arts(
  id,
  caller_id,
  art_name,
  artist_name,
  description,
  image_url,
  created_at
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::text,
  $7::timestamptz
)
on conflict (id) do update set
  caller_id = excluded.caller_id,
  art_name = excluded.art_name,
  artist_name = excluded.artist_name,
  description = excluded.description,
  image_url = excluded.image_url,
  created_at = excluded.created_at;
`

const QSelectArtByID = `--sql db2019ca-8c39-4977-bf4a-d107580f1c68
select id::text, caller_id, art_name, artist_name, description, image_url, created_at
from arts
where id = $1::uuid
limit 1;
`
