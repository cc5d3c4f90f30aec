package app

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Navigator moves the user to another screen.
type Navigator interface {
	Navigate(ctx context.Context, location string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, location string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, location string) { f(ctx, location) }

type navigatorKey struct{}

// ContextWithNavigator scopes n to the work done under ctx, such as one HTTP request.
func ContextWithNavigator(ctx context.Context, n Navigator) context.Context {
	return context.WithValue(ctx, navigatorKey{}, n)
}

// NavigatorFrom returns the navigator scoped to ctx, or nil.
func NavigatorFrom(ctx context.Context) Navigator {
	n, _ := ctx.Value(navigatorKey{}).(Navigator)
	return n
}

// Redirect is a request-scoped Navigator. It records the location so the
// handler serving the request can answer with a full-page redirect.
type Redirect struct {
	mu       sync.Mutex
	location string
}

// Navigate records location. The first recorded location wins.
func (r *Redirect) Navigate(_ context.Context, location string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.location == "" {
		r.location = location
	}
}

// Location returns the recorded location, empty when none.
func (r *Redirect) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

// PrintNavigator tells a terminal user where to go next.
type PrintNavigator struct {
	W io.Writer
}

// Navigate prints a hint for the login screen, or the location itself.
func (p PrintNavigator) Navigate(_ context.Context, location string) {
	if location == LoginPath {
		fmt.Fprintln(p.W, "Session expired. Run `walletctl login` to sign in again.")
		return
	}
	fmt.Fprintf(p.W, "Continue at %s\n", location)
}
