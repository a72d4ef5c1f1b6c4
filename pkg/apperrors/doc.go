// Package apperrors defines the error taxonomy shared by all core services.
//
// Every operation boundary returns either nil or an error whose Kind can be
// inspected with KindOf. Validation and guard failures are created here and
// returned to the caller; storage failures are wrapped as Unavailable so
// transport layers can map them without string matching.
package apperrors
