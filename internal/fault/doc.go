// Package fault defines the error taxonomy shared by the control plane and
// the data plane.
//
// Control-plane handlers map a Kind to an HTTP status and include it as
// error_kind in JSON error bodies. Data-plane losses (DeadlineExpired,
// Backpressure, UnrecoverableLoss) never surface as control-plane errors;
// they feed metrics and scheduler decisions instead.
package fault
