package api

// channelProfileQuery aggregates a channel's profile relative to a viewer.
// Counts and the is_subscribed flag come out of one statement, so they all
// derive from the same snapshot of the subscription edge set.
const channelProfileQuery = `SELECT
	a.id,
	a.username,
	a.email,
	a.full_name,
	a.avatar_url,
	a.cover_url,
	a.created_at,
	(SELECT count(*) FROM subscriptions s WHERE s.channel_id = a.id) AS subscribers_count,
	(SELECT count(*) FROM subscriptions s WHERE s.subscriber_id = a.id) AS channels_subscribed_to_count,
	EXISTS (
		SELECT 1 FROM subscriptions s
		WHERE s.channel_id = a.id AND s.subscriber_id = $2
	) AS is_subscribed
FROM accounts a
WHERE a.username = lower($1)`

// watchHistoryQuery denormalizes the account's ordered watch history into
// one json document. Videos that no longer exist drop out (inner join);
// a video whose owner is gone keeps its row with a null owner (left join).
const watchHistoryQuery = `SELECT
	COALESCE(
		(SELECT json_agg(
			json_build_object(
				'id', v.id,
				'title', v.title,
				'thumbnail_url', v.thumbnail_url,
				'video_url', v.video_url,
				'duration_seconds', v.duration_seconds,
				'views', v.views,
				'created_at', v.created_at,
				'owner', CASE WHEN o.id IS NULL THEN NULL ELSE
					json_build_object(
						'full_name', o.full_name,
						'username', o.username,
						'avatar_url', o.avatar_url
					)
				END
			) ORDER BY h.pos
		)
		FROM unnest(a.watch_history) WITH ORDINALITY AS h(video_id, pos)
		JOIN videos v ON v.id = h.video_id
		LEFT JOIN accounts o ON o.id = v.owner_id
		), '[]'::json
	) AS history
FROM accounts a
WHERE a.id = $1`
