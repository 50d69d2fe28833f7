package proxy

import (
	"errors"
	"strings"

	"github.com/any-hub/any-offline/internal/control"
)

// AppRegistration 将 App 名称与其拦截器、控制通道绑定，注册前先校验。
type AppRegistration struct {
	Name        string
	Interceptor *Interceptor
	Control     *control.Channel
}

// ErrAppHandlerExists indicates an interceptor has already been registered for the app.
var ErrAppHandlerExists = errors.New("app handler already registered")

// Validate ensures both name and interceptor are present before registration.
func (r AppRegistration) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("app name required")
	}
	if r.Interceptor == nil {
		return errors.New("app interceptor required")
	}
	return nil
}
