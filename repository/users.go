package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/acksell/larder"
	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/schema"
)

type Users struct {
	*entityStore[larder.User, *larder.User]
}

func newUsers(db *ddbsdk.Client, ix schema.Indexes, o options) *Users {
	return &Users{newEntityStore[larder.User, *larder.User](db, ix.User, "id", cache.NSUser, o)}
}

// GetByEmail returns the user registered with email, or nil. Emails are
// compared case-insensitively.
func (u *Users) GetByEmail(ctx context.Context, email string) (*larder.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	key, ok := schema.UsersByEmail.PartitionValue(map[string]string{"email": email})
	if !ok {
		return nil, fmt.Errorf("get user by email: email is required")
	}
	res, err := u.Query(ctx, schema.UsersByEmail.Name(), key, Page{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, nil
	}
	return res.Items[0], nil
}
