package postgres

// Notification columns are selected in this order by every query below.
const notificationColumns = `id, title, message, target_groups, media_urls, is_interactive, sent_at, scheduled_for, created_at`

const (
	qNotificationInsert = `
INSERT INTO notifications (id, title, message, target_groups, media_urls, is_interactive, sent_at, scheduled_for, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + notificationColumns + `;`

	qNotificationByID = `
SELECT ` + notificationColumns + `
FROM notifications
WHERE id = $1;`

	// $1 groups (NULL = any), $2 media only.
	qNotificationsSent = `
SELECT ` + notificationColumns + `
FROM notifications
WHERE sent_at IS NOT NULL
  AND ($1::text[] IS NULL OR target_groups && $1::text[])
  AND (NOT $2::boolean OR cardinality(media_urls) > 0)
ORDER BY sent_at DESC, id;`

	qNotificationsPending = `
SELECT ` + notificationColumns + `
FROM notifications
WHERE sent_at IS NULL AND scheduled_for IS NOT NULL
ORDER BY scheduled_for;`

	qNotificationMarkSent = `
UPDATE notifications
SET sent_at = $2
WHERE id = $1 AND sent_at IS NULL;`

	qNotificationDeletePending = `
DELETE FROM notifications
WHERE id = $1 AND sent_at IS NULL;`

	// The SELECT only yields a row for an existing, delivered notification, so a
	// missing or pending one inserts nothing. A missing user trips the foreign key.
	qResponseUpsert = `
INSERT INTO notification_responses (notification_id, user_id, response, responded_at)
SELECT n.id, $2, $3, $4
FROM notifications n
WHERE n.id = $1 AND n.sent_at IS NOT NULL
ON CONFLICT (notification_id, user_id)
DO UPDATE SET response = EXCLUDED.response, responded_at = EXCLUDED.responded_at;`

	qResponsesByNotifications = `
SELECT notification_id, user_id, response, responded_at
FROM notification_responses
WHERE notification_id = ANY($1::uuid[])
ORDER BY notification_id, responded_at, user_id;`
)

const userColumns = `id, first_name, last_name, birthdate, profile_picture, groups, email, telegram_chat_id`

const (
	qUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1;`

	qUsersByIDs = `
SELECT ` + userColumns + `
FROM users
WHERE id = ANY($1::uuid[]);`

	qUsersByGroups = `
SELECT ` + userColumns + `
FROM users
WHERE groups && $1::text[]
ORDER BY last_name, first_name, id;`
)

// Constraint names declared in migrations/00001_init.sql.
const (
	fkResponseNotification = "notification_responses_notification_fk"
	fkResponseUser         = "notification_responses_user_fk"
)
