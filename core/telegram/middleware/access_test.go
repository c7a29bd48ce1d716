package middleware

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

type stubContext struct {
	tele.Context
	sender *tele.User
}

func (s *stubContext) Sender() *tele.User { return s.sender }

func TestAdminOnlyMiddlewareRejectsNonAdmin(t *testing.T) {
	var handlerCalls, rejectCalls int
	mw := AdminOnlyMiddleware(AdminOptions{
		IsAdmin:  func(id int64) bool { return id == 1 },
		OnReject: func(tele.Context) error { rejectCalls++; return nil },
	})
	wrapped := mw(func(tele.Context) error { handlerCalls++; return nil })

	if err := wrapped(&stubContext{sender: &tele.User{ID: 2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handlerCalls != 0 {
		t.Fatalf("handler ran for non-admin user")
	}
	if rejectCalls != 1 {
		t.Fatalf("expected 1 rejection, got %d", rejectCalls)
	}
}

func TestAdminOnlyMiddlewarePassesAdmin(t *testing.T) {
	var handlerCalls int
	mw := AdminOnlyMiddleware(AdminOptions{
		IsAdmin: func(id int64) bool { return id == 1 },
	})
	wrapped := mw(func(tele.Context) error { handlerCalls++; return nil })

	if err := wrapped(&stubContext{sender: &tele.User{ID: 1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handlerCalls != 1 {
		t.Fatalf("expected handler to run once, got %d", handlerCalls)
	}
}

func TestAdminOnlyMiddlewareRejectsQuietlyWithoutOnReject(t *testing.T) {
	var handlerCalls int
	mw := AdminOnlyMiddleware(AdminOptions{
		IsAdmin: func(int64) bool { return false },
	})
	wrapped := mw(func(tele.Context) error { handlerCalls++; return nil })

	if err := wrapped(&stubContext{sender: &tele.User{ID: 2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handlerCalls != 0 {
		t.Fatalf("handler ran for non-admin user")
	}
}
