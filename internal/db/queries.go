package db

const printerColumns = `id, name, model, status, capabilities_json, current_job_id, notes, last_maintenance, created_at, updated_at`

const (
	InsertPrinter = `
		INSERT INTO printers (name, model, status, capabilities_json, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	GetPrinterByID = `SELECT ` + printerColumns + ` FROM printers WHERE id = ?`

	ListPrinters = `SELECT ` + printerColumns + ` FROM printers ORDER BY name ASC, id ASC`

	ListPrintersByStatus = `SELECT ` + printerColumns + ` FROM printers WHERE status = ? ORDER BY name ASC, id ASC`

	UpdatePrinter = `
		UPDATE printers SET name = ?, model = ?, capabilities_json = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`

	UpdatePrinterStatus = `
		UPDATE printers SET status = ?, updated_at = ? WHERE id = ? AND current_job_id IS NULL
	`

	SetPrinterCurrentJob = `
		UPDATE printers SET status = ?, current_job_id = ?, updated_at = ? WHERE id = ?
	`

	AcquirePrinter = `
		UPDATE printers SET status = 'busy', current_job_id = ?, updated_at = ?
		WHERE id = ? AND status = 'available' AND current_job_id IS NULL
	`

	ReleasePrinter = `
		UPDATE printers SET status = 'available', current_job_id = NULL, updated_at = ?
		WHERE id = ? AND current_job_id = ?
	`

	RegisterPrinterMaintenance = `
		UPDATE printers SET status = 'maintenance', last_maintenance = ?, notes = ?, updated_at = ?
		WHERE id = ? AND current_job_id IS NULL
	`

	DeletePrinter = `DELETE FROM printers WHERE id = ? AND status != 'busy'`

	CountPrintersByStatus = `SELECT status, COUNT(*) FROM printers GROUP BY status`

	CountPrintersByModel = `SELECT model, COUNT(*) FROM printers GROUP BY model`
)

const (
	InsertCustomerModel = `
		INSERT INTO customer_models (user_id, original_name, status) VALUES (?, ?, ?)
	`

	GetCustomerModelByID = `
		SELECT id, user_id, original_name, status, created_at FROM customer_models WHERE id = ?
	`

	UpdateCustomerModelStatus = `UPDATE customer_models SET status = ? WHERE id = ?`
)

const queueColumns = `id, model_id, user_id, status, priority, notes, print_settings_json, created_at, updated_at`

const (
	InsertQueueEntry = `
		INSERT INTO print_queue (model_id, user_id, status, priority, notes, print_settings_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetQueueEntryByID = `SELECT ` + queueColumns + ` FROM print_queue WHERE id = ?`

	ListPendingQueue = `
		SELECT ` + queueColumns + ` FROM print_queue
		WHERE status = 'pending' ORDER BY priority DESC, created_at ASC, id ASC
	`

	UpdateQueueStatus = `
		UPDATE print_queue SET status = ?, notes = ?, updated_at = ? WHERE id = ? AND status = ?
	`

	UpdateQueuePriority = `
		UPDATE print_queue SET priority = ?, updated_at = ? WHERE id = ? AND priority = ?
	`

	DeleteQueueEntry = `DELETE FROM print_queue WHERE id = ?`

	CountQueueByStatus = `SELECT status, COUNT(*) FROM print_queue GROUP BY status`

	InsertQueueHistory = `
		INSERT INTO print_queue_history (queue_id, event_type, previous_value, new_value, description, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	ListQueueHistory = `
		SELECT id, queue_id, event_type, previous_value, new_value, description, actor_id, created_at
		FROM print_queue_history WHERE queue_id = ? ORDER BY created_at ASC, id ASC
	`
)

const jobColumns = `id, queue_id, printer_id, status, scheduled_start_time, start_time, estimated_end_time, actual_end_time, progress, material_used, notes, created_at, updated_at`

const (
	InsertJob = `
		INSERT INTO print_jobs (queue_id, printer_id, status, scheduled_start_time, estimated_end_time, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetJobByID = `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = ?`

	GetJobByQueueID = `SELECT ` + jobColumns + ` FROM print_jobs WHERE queue_id = ?`

	UpdateJobState = `
		UPDATE print_jobs SET
			status = ?, start_time = ?, estimated_end_time = ?, actual_end_time = ?, progress = ?, notes = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	UpdateJobProgress = `UPDATE print_jobs SET progress = ?, updated_at = ? WHERE id = ?`

	UpdateJobMaterial = `UPDATE print_jobs SET material_used = ?, updated_at = ? WHERE id = ?`

	ListCurrentJobs = `
		SELECT ` + jobColumns + ` FROM print_jobs
		WHERE status IN ('preparing', 'printing', 'post-processing') ORDER BY start_time ASC, id ASC
	`

	CountJobsByStatus = `SELECT status, COUNT(*) FROM print_jobs GROUP BY status`

	ListCompletedJobDurations = `
		SELECT start_time, actual_end_time FROM print_jobs
		WHERE status = 'completed' AND start_time IS NOT NULL AND actual_end_time IS NOT NULL
	`

	SumMaterialUsed = `SELECT COALESCE(SUM(material_used), 0) FROM print_jobs`
)

const statusColumns = `id, order_id, product_id, queue_id, printer_id, status, progress_percentage, started_at, estimated_completion, completed_at, total_print_time_seconds, elapsed_print_time_seconds, notes, created_at, updated_at`

const (
	InsertStatus = `
		INSERT INTO print_status (order_id, product_id, queue_id, printer_id, status, progress_percentage, total_print_time_seconds, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
	`

	GetStatusByID = `SELECT ` + statusColumns + ` FROM print_status WHERE id = ?`

	GetStatusByOrderProduct = `SELECT ` + statusColumns + ` FROM print_status WHERE order_id = ? AND product_id = ?`

	ListStatusByOrder = `SELECT ` + statusColumns + ` FROM print_status WHERE order_id = ? ORDER BY created_at ASC, id ASC`

	ListStatusByQueue = `SELECT ` + statusColumns + ` FROM print_status WHERE queue_id = ? ORDER BY created_at ASC, id ASC`

	ListActiveStatus = `
		SELECT ` + statusColumns + ` FROM print_status
		WHERE status IN ('pending', 'preparing', 'printing', 'paused')
		ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?
	`

	ListRecentlyCompletedStatus = `
		SELECT ` + statusColumns + ` FROM print_status
		WHERE status = 'completed' AND completed_at >= ?
		ORDER BY completed_at DESC, id DESC LIMIT ?
	`

	UpdateStatusState = `
		UPDATE print_status SET
			status = ?, printer_id = ?, progress_percentage = ?, started_at = ?, estimated_completion = ?,
			completed_at = ?, elapsed_print_time_seconds = ?, notes = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	InsertStatusUpdate = `
		INSERT INTO print_status_updates (print_status_id, previous_status, new_status, previous_progress, new_progress, updated_by, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	ListStatusUpdates = `
		SELECT id, print_status_id, previous_status, new_status, previous_progress, new_progress, updated_by, message, created_at
		FROM print_status_updates WHERE print_status_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
	`

	InsertStatusMessage = `
		INSERT INTO status_messages (print_status_id, message, type, is_visible_to_customer, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	ListStatusMessages = `
		SELECT id, print_status_id, message, type, is_visible_to_customer, created_at
		FROM status_messages WHERE print_status_id = ? AND (? = 0 OR is_visible_to_customer = 1)
		ORDER BY created_at DESC, id DESC LIMIT ?
	`
)

const metricColumns = `id, print_status_id, hotend_temp, bed_temp, speed_percentage, fan_speed_percentage, layer_height, current_layer, total_layers, filament_used_mm, print_time_remaining_seconds, additional_data, recorded_at`

const (
	InsertMetric = `
		INSERT INTO print_metrics (print_status_id, hotend_temp, bed_temp, speed_percentage, fan_speed_percentage, layer_height, current_layer, total_layers, filament_used_mm, print_time_remaining_seconds, additional_data, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ListRecentMetrics = `
		SELECT ` + metricColumns + ` FROM print_metrics
		WHERE print_status_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?
	`
)

const (
	InsertWebhook = `
		INSERT INTO webhooks (name, url, secret, events_json, enabled)
		VALUES (?, ?, ?, ?, ?)
	`

	GetWebhookByID = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE id = ?
	`

	ListWebhooks = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks ORDER BY name ASC
	`

	ListWebhooksForEvent = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE enabled = 1 AND events_json LIKE ?
	`

	UpdateWebhook = `
		UPDATE webhooks SET name = ?, url = ?, secret = ?, events_json = ?, enabled = ? WHERE id = ?
	`

	DeleteWebhook = `DELETE FROM webhooks WHERE id = ?`
)

const (
	GetSetting = `SELECT value, encrypted FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, encrypted = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`
)

const (
	GetPreferences = `
		SELECT user_id, notify_on_start, notify_on_complete, notify_on_failure, notify_on_pause, notify_on_progress, progress_interval, updated_at
		FROM notification_preferences WHERE user_id = ?
	`

	UpsertPreferences = `
		INSERT INTO notification_preferences (user_id, notify_on_start, notify_on_complete, notify_on_failure, notify_on_pause, notify_on_progress, progress_interval, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			notify_on_start = excluded.notify_on_start,
			notify_on_complete = excluded.notify_on_complete,
			notify_on_failure = excluded.notify_on_failure,
			notify_on_pause = excluded.notify_on_pause,
			notify_on_progress = excluded.notify_on_progress,
			progress_interval = excluded.progress_interval,
			updated_at = excluded.updated_at
	`
)

const (
	InsertNotification = `
		INSERT INTO notifications (id, user_id, audience, event, type, title, message, related_type, related_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'unread', ?)
	`

	ListNotificationsByUser = `
		SELECT id, user_id, audience, event, type, title, message, related_type, related_id, status, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`

	ListAdminNotifications = `
		SELECT id, user_id, audience, event, type, title, message, related_type, related_id, status, created_at
		FROM notifications WHERE audience = 'admin' ORDER BY created_at DESC LIMIT ?
	`
)
