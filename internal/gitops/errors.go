// Package gitops wraps go-git with rate-limited, retried, classified
// operations. Every mutating operation passes through one pacer; transient
// failures are retried with exponential backoff, permanent ones propagate
// immediately.
package gitops

import (
	"errors"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrorClass tells the retry loop how to treat a failed git operation.
type ErrorClass int

const (
	// ClassRetryable covers transient failures: lock contention, network
	// hiccups, transient filesystem errors.
	ClassRetryable ErrorClass = iota

	// ClassPermanent covers failures a retry cannot fix: not a repository,
	// permission denied, bad object state.
	ClassPermanent

	// ClassNoOp covers expected idempotent conditions, such as committing
	// a clean tree. Callers treat these as soft success.
	ClassNoOp
)

// Classifier decides the class of a git failure. Pluggable so the heuristic
// table can be replaced or unit-tested on its own.
type Classifier interface {
	Classify(err error) ErrorClass
}

// defaultClassifier matches go-git sentinels first and falls back to
// message heuristics for errors that surface as plain strings.
type defaultClassifier struct{}

// NewClassifier returns the default git error classifier.
func NewClassifier() Classifier {
	return defaultClassifier{}
}

var permanentMessages = []string{
	"repository does not exist",
	"repository not found",
	"permission denied",
	"authentication required",
	"authorization failed",
	"object not found",
	"reference not found",
	"worktree not clean",
}

var retryableMessages = []string{
	"index.lock",
	"lock",
	"resource temporarily unavailable",
	"connection reset",
	"connection refused",
	"timeout",
	"temporary",
	"i/o error",
}

func (defaultClassifier) Classify(err error) ErrorClass {
	if err == nil {
		return ClassNoOp
	}

	if errors.Is(err, git.ErrEmptyCommit) {
		return ClassNoOp
	}
	if errors.Is(err, git.ErrRepositoryNotExists) ||
		errors.Is(err, git.ErrRemoteNotFound) ||
		errors.Is(err, git.ErrBranchNotFound) {
		return ClassPermanent
	}

	msg := strings.ToLower(err.Error())
	for _, m := range permanentMessages {
		if strings.Contains(msg, m) {
			return ClassPermanent
		}
	}
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return ClassRetryable
		}
	}

	// Unrecognized failures default to permanent: blind retries against an
	// unknown git state risk compounding the damage.
	return ClassPermanent
}
