package internaldefs

import (
	emailauth "github.com/krista-software/krista-email-authentication"
)

// CounterDef defines a public type used by emailauth APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   emailauth.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by emailauth APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   emailauth.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the email authentication engine.
var CounterDefs = []CounterDef{
	{ID: emailauth.MetricLoginRequested, Name: "emailauth_login_requested_total", Help: "Login link requests."},
	{ID: emailauth.MetricLoginInvalidInput, Name: "emailauth_login_invalid_input_total", Help: "Login requests rejected for malformed input."},
	{ID: emailauth.MetricLoginDomainRejected, Name: "emailauth_login_domain_rejected_total", Help: "Login requests rejected by the domain allow-list."},
	{ID: emailauth.MetricLoginDenied, Name: "emailauth_login_denied_total", Help: "Login requests denied because new account creation is disabled."},
	{ID: emailauth.MetricLoginRateLimited, Name: "emailauth_login_rate_limited_total", Help: "Rate-limited login requests."},
	{ID: emailauth.MetricLinkIssued, Name: "emailauth_link_issued_total", Help: "Verification links stored and mailed."},
	{ID: emailauth.MetricLinkVerified, Name: "emailauth_link_verified_total", Help: "Verification links consumed successfully."},
	{ID: emailauth.MetricLinkNotFound, Name: "emailauth_link_not_found_total", Help: "Verification attempts with an unknown code."},
	{ID: emailauth.MetricLinkExpired, Name: "emailauth_link_expired_total", Help: "Verification attempts on expired links."},
	{ID: emailauth.MetricLinkReplayed, Name: "emailauth_link_replayed_total", Help: "Verification attempts on already-used links."},
	{ID: emailauth.MetricLinkSecretMismatch, Name: "emailauth_link_secret_mismatch_total", Help: "Verification attempts with a stored-secret mismatch."},
	{ID: emailauth.MetricVerifyDomainRejected, Name: "emailauth_verify_domain_rejected_total", Help: "Verifications rejected by domain policy."},
	{ID: emailauth.MetricSessionCreated, Name: "emailauth_session_created_total", Help: "Created sessions."},
	{ID: emailauth.MetricSessionResolved, Name: "emailauth_session_resolved_total", Help: "Session lookups resolved to an account."},
	{ID: emailauth.MetricSessionAnonymous, Name: "emailauth_session_anonymous_total", Help: "Session lookups resolved to anonymous."},
	{ID: emailauth.MetricLogout, Name: "emailauth_logout_total", Help: "Logout operations."},
	{ID: emailauth.MetricAccountProvisioned, Name: "emailauth_account_provisioned_total", Help: "Accounts created by provisioning."},
	{ID: emailauth.MetricAccountDuplicateMerged, Name: "emailauth_account_duplicate_merged_total", Help: "Duplicate account creations converged onto an existing account."},
	{ID: emailauth.MetricRoleProvisioned, Name: "emailauth_role_provisioned_total", Help: "Roles created by provisioning."},
	{ID: emailauth.MetricEmailEnqueued, Name: "emailauth_email_enqueued_total", Help: "Verification mails queued for delivery."},
	{ID: emailauth.MetricEmailSent, Name: "emailauth_email_sent_total", Help: "Verification mails delivered."},
	{ID: emailauth.MetricEmailSendFailed, Name: "emailauth_email_send_failed_total", Help: "Verification mail deliveries that failed."},
	{ID: emailauth.MetricStoreUnavailable, Name: "emailauth_store_unavailable_total", Help: "Operations that hit an unavailable backing store."},
}

// HistogramDefs is an exported constant or variable used by the email authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: emailauth.MetricVerifyLatency, Name: "emailauth_verify_latency_seconds", Help: "Link verification latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the email authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the email authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
