// Package connector manages the engines, sessions, and transactional scopes
// of one multi-database endpoint. Engines are opened eagerly at construction
// and live until Close; sessions bind a transaction to one engine and
// optionally one schema target.
package connector

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
	"github.com/fathomdata/sqlmux/pkg/config"
	"github.com/fathomdata/sqlmux/pkg/dialect"
)

// DefaultEngine is the alias every URI set contains. When no configured
// database is literally named "default", the first configured name backs it.
const DefaultEngine = "default"

// BuildURIs derives one canonical URI per configured database name, plus the
// "default" alias. The result keys are the configured names; values are
// kind://... URIs ready for dialect DSN translation.
//
// sqlite embeds no credentials and joins the path with the database name;
// every other kind requires both user and password and URL-escapes them.
func BuildURIs(cc config.ConnectorConfig) (map[string]string, error) {
	if cc.Kind == "" || cc.HostOrPath == "" {
		return nil, fmt.Errorf("%w: kind and host are required", apperrors.ErrInvalidConfig)
	}
	if len(cc.Names) == 0 {
		return nil, fmt.Errorf("%w: at least one database name is required", apperrors.ErrInvalidConfig)
	}
	d, err := dialect.Get(cc.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidConfig, err)
	}
	if d.RequiresCredentials() && (cc.User == "" || cc.Password == "") {
		return nil, fmt.Errorf("%w: %s requires user and password", apperrors.ErrInvalidConfig, cc.Kind)
	}

	uris := make(map[string]string, len(cc.Names)+1)
	for _, name := range cc.Names {
		if name == "" {
			return nil, fmt.Errorf("%w: empty database name", apperrors.ErrInvalidConfig)
		}
		uri, err := buildURI(d, cc, name)
		if err != nil {
			return nil, err
		}
		uris[name] = uri
	}

	if _, ok := uris[DefaultEngine]; !ok {
		uris[DefaultEngine] = uris[cc.Names[0]]
	}
	return uris, nil
}

func buildURI(d dialect.Dialect, cc config.ConnectorConfig, name string) (string, error) {
	if cc.Kind == "sqlite" {
		dir := strings.TrimRight(cc.HostOrPath, "/")
		if dir == "" {
			return "", fmt.Errorf("%w: sqlite path reduces to nothing", apperrors.ErrInvalidConfig)
		}
		return "sqlite://" + dir + "/" + name, nil
	}

	u := url.URL{
		Scheme: cc.Kind,
		Host:   cc.ResolvedHost(),
		Path:   "/" + name,
	}
	if cc.Port > 0 {
		u.Host = fmt.Sprintf("%s:%d", u.Host, cc.Port)
	}
	if cc.User != "" {
		if cc.Password != "" {
			u.User = url.UserPassword(cc.User, cc.Password)
		} else {
			u.User = url.User(cc.User)
		}
	}
	return u.String(), nil
}
