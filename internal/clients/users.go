package clients

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

// User is the user directory's view of a user.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserClient looks users up in the user directory.
type UserClient struct {
	caller jsonCaller
}

// NewUserClient returns a client for the user directory at baseURL. A nil
// client means NewHTTPClient without a timeout.
func NewUserClient(baseURL string, client *http.Client, logger *logrus.Entry) *UserClient {
	return &UserClient{caller: newJSONCaller("user-service", baseURL, client, logger)}
}

// GetUser returns the user with the given id, ErrNotFound when the directory
// has no such user, or a *TransportError when the directory could not be
// asked.
func (c *UserClient) GetUser(ctx context.Context, userID int) (*User, error) {
	var user User
	if err := c.caller.getJSON(ctx, "/api/users/"+strconv.Itoa(userID), &user); err != nil {
		return nil, err
	}
	return &user, nil
}
