package test_utils

import (
	"context"

	"github.com/calshare/calshare/pkg/user"
)

// TestUsers are inserted by ResetDB. Ids follow insertion order.
var TestUsers = []user.User{
	{
		Id:          1,
		Uid:         "7c8a4f3e-1f2b-4b8e-9a55-0f8f2c1d0a01",
		Username:    "anna",
		DisplayName: "Anna Test",
		Settings:    user.Settings{Timezone: "Europe/Warsaw"},
	},
	{
		Id:          2,
		Uid:         "7c8a4f3e-1f2b-4b8e-9a55-0f8f2c1d0a02",
		Username:    "ben",
		DisplayName: "Ben Test",
		Settings:    user.Settings{Timezone: "America/New_York"},
	},
}

// ContextWithUser returns a context carrying the given test user.
func ContextWithUser(u user.User) context.Context {
	return user.WithUser(context.Background(), u)
}
