// Package gate decides once per process whether the current operator may
// run the deletion audit, and under which identity prefix.
package gate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"strings"
	"sync"
)

// Identity names the operator and workstation being authorized.
type Identity struct {
	User    string
	Machine string
}

// CurrentIdentity returns the process owner's account name (without a
// domain qualifier) and the host name. Unknown parts are left empty.
func CurrentIdentity() Identity {
	var id Identity
	if u, err := user.Current(); err == nil {
		name := u.Username
		if i := strings.LastIndexAny(name, `\/`); i >= 0 {
			name = name[i+1:]
		}
		id.User = name
	}
	if h, err := os.Hostname(); err == nil {
		id.Machine = h
	}
	return id
}

// Decision is the outcome of authorization.
type Decision struct {
	Authorized bool
	// Prefix namespaces output folders per authorized group.
	Prefix string
	// Source is the allow-list file that matched.
	Source string
}

// AllowList is the external allow-list collaborator.
type AllowList interface {
	Lookup(ctx context.Context, id Identity) (Decision, error)
}

// Gate caches the first authorization decision for the life of the process.
type Gate struct {
	list AllowList
	log  *slog.Logger

	once     sync.Once
	decision Decision
}

// New creates a gate over list.
func New(list AllowList, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{list: list, log: log}
}

// Authorize resolves the decision on first call and returns the cached
// decision afterwards; later identities are ignored. Any lookup failure,
// including a panic in the allow list, denies.
func (g *Gate) Authorize(ctx context.Context, id Identity) Decision {
	g.once.Do(func() {
		g.decision = g.resolve(ctx, id)
	})
	return g.decision
}

func (g *Gate) resolve(ctx context.Context, id Identity) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("allow-list lookup panicked, audit disabled", "panic", fmt.Sprint(r))
			d = Decision{}
		}
	}()

	d, err := g.list.Lookup(ctx, id)
	if err != nil {
		g.log.Warn("allow-list unavailable, audit disabled", "user", id.User, "machine", id.Machine, "error", err)
		return Decision{}
	}
	if !d.Authorized {
		g.log.Info("operator not on any allow-list, audit disabled", "user", id.User, "machine", id.Machine)
		return Decision{}
	}
	g.log.Info("audit enabled", "user", id.User, "machine", id.Machine, "prefix", d.Prefix)
	return d
}
