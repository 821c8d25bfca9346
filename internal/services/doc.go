// Package services defines the shared error taxonomy used across the
// bot's components. Sentinel markers let callers classify failures as
// retryable or permanent without inspecting message text.
package services
