// Package alerts raises and resolves per-patient emergency alerts from scored
// readings and delivers them to Teams, Slack, PagerDuty, or generic HTTP
// webhooks.
package alerts
