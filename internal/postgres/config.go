package postgres

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxPort = 65535

// Keywords set by the dedicated ConnectionConfig fields. Anything else is an
// option passed to the driver unchanged.
var baseKeywords = []string{"host", "user", "password", "dbname", "port"}

type option struct {
	key   string
	value string
}

// ConnectionConfig holds validated connection settings. It is immutable
// after construction and safe to share between goroutines.
type ConnectionConfig struct {
	host     string
	user     string
	password string
	dbName   string
	port     string
	options  []option // sorted by key
}

// NewConnectionConfig validates the settings and freezes them. A failed
// validation returns an *Error of kind ErrConfig naming the field.
func NewConnectionConfig(host, user, password, dbName string, port int) (ConnectionConfig, error) {
	required := []struct {
		field string
		value string
	}{
		{"host", host},
		{"user", user},
		{"password", password},
		{"dbname", dbName},
	}
	for _, r := range required {
		if r.value == "" {
			return ConnectionConfig{}, &Error{
				Kind:  ErrConfig,
				Op:    "config",
				Field: r.field,
				Msg:   fmt.Sprintf("field %s cannot be empty", r.field),
			}
		}
	}

	if port < 0 || port > maxPort {
		return ConnectionConfig{}, &Error{
			Kind:  ErrConfig,
			Op:    "config",
			Field: "port",
			Msg:   fmt.Sprintf("port must be between 0 and %d, got %d", maxPort, port),
		}
	}

	return ConnectionConfig{
		host:     host,
		user:     user,
		password: password,
		dbName:   dbName,
		port:     strconv.Itoa(port),
	}, nil
}

// ParseConnectionURL builds a ConnectionConfig from a postgres:// URL or a
// keyword/value DSN. Settings other than host, port, user, password and
// dbname (sslmode, connect_timeout, application_name, ...) are kept as
// options. A list of hosts is rejected: every pooled connection dials the
// same server.
func ParseConnectionURL(url string) (ConnectionConfig, error) {
	urlErr := func(err error) error {
		return &Error{Kind: ErrConfig, Op: "config", Field: "url", Err: err}
	}

	parsed, err := pgconn.ParseConfig(url)
	if err != nil {
		return ConnectionConfig{}, urlErr(err)
	}
	for _, fb := range parsed.Fallbacks {
		if fb.Host != parsed.Host || fb.Port != parsed.Port {
			return ConnectionConfig{}, &Error{
				Kind:  ErrConfig,
				Op:    "config",
				Field: "url",
				Msg:   "multiple hosts are not supported",
			}
		}
	}

	dsn := url
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		if dsn, err = pq.ParseURL(url); err != nil {
			return ConnectionConfig{}, urlErr(err)
		}
	}
	settings, err := splitSettings(dsn)
	if err != nil {
		return ConnectionConfig{}, urlErr(err)
	}

	cc, err := NewConnectionConfig(parsed.Host, parsed.User, parsed.Password, parsed.Database, int(parsed.Port))
	if err != nil {
		return ConnectionConfig{}, err
	}
	for _, o := range settings {
		if !slices.Contains(baseKeywords, o.key) {
			cc.options = setOption(cc.options, o.key, o.value)
		}
	}
	return cc, nil
}

// WithOption returns a copy of c with the driver setting key set to value.
// The combined settings must still parse.
func (c ConnectionConfig) WithOption(key, value string) (ConnectionConfig, error) {
	if key == "" || slices.Contains(baseKeywords, key) || strings.ContainsFunc(key, unicode.IsSpace) {
		return ConnectionConfig{}, &Error{
			Kind:  ErrConfig,
			Op:    "config",
			Field: key,
			Msg:   fmt.Sprintf("%q cannot be set as an option", key),
		}
	}

	out := c
	out.options = setOption(slices.Clone(c.options), key, value)
	if _, err := pgconn.ParseConfig(out.ConnectionParams().DSN()); err != nil {
		return ConnectionConfig{}, &Error{Kind: ErrConfig, Op: "config", Field: key, Err: err}
	}
	return out, nil
}

// Option returns the value of a driver setting kept alongside the base fields.
func (c ConnectionConfig) Option(key string) (string, bool) {
	for _, o := range c.options {
		if o.key == key {
			return o.value, true
		}
	}
	return "", false
}

func setOption(opts []option, key, value string) []option {
	i, found := slices.BinarySearchFunc(opts, key, func(o option, k string) int {
		return strings.Compare(o.key, k)
	})
	if found {
		opts[i].value = value
		return opts
	}
	return slices.Insert(opts, i, option{key: key, value: value})
}

// splitSettings parses a keyword/value connection string. Values may be
// single-quoted; a backslash escapes the next character.
func splitSettings(s string) ([]option, error) {
	var opts []option
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return opts, nil
		}
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return nil, fmt.Errorf("missing \"=\" after %q", s)
		}
		key := strings.TrimSpace(s[:eq])
		s = strings.TrimLeftFunc(s[eq+1:], unicode.IsSpace)

		var val strings.Builder
		if strings.HasPrefix(s, "'") {
			s = s[1:]
			closed := false
			for len(s) > 0 {
				c := s[0]
				s = s[1:]
				if c == '\\' && len(s) > 0 {
					val.WriteByte(s[0])
					s = s[1:]
					continue
				}
				if c == '\'' {
					closed = true
					break
				}
				val.WriteByte(c)
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quoted value for %s", key)
			}
		} else {
			for len(s) > 0 && !unicode.IsSpace(rune(s[0])) {
				c := s[0]
				s = s[1:]
				if c == '\\' && len(s) > 0 {
					c = s[0]
					s = s[1:]
				}
				val.WriteByte(c)
			}
		}
		opts = append(opts, option{key: key, value: val.String()})
	}
}

func (c ConnectionConfig) Host() string         { return c.host }
func (c ConnectionConfig) User() string         { return c.user }
func (c ConnectionConfig) Password() string     { return c.password }
func (c ConnectionConfig) DatabaseName() string { return c.dbName }

// Port returns the port in decimal string form.
func (c ConnectionConfig) Port() string { return c.port }

// ConnectionParams returns the keyword/value pairs used to open connections:
// the base fields first, then the options in keyword order.
func (c ConnectionConfig) ConnectionParams() ConnectionParams {
	params := ConnectionParams{
		Keywords: slices.Clone(baseKeywords),
		Values:   []string{c.host, c.user, c.password, c.dbName, c.port},
	}
	for _, o := range c.options {
		params.Keywords = append(params.Keywords, o.key)
		params.Values = append(params.Values, o.value)
	}
	return params
}

// ConnectionParams are parallel keyword and value slices.
type ConnectionParams struct {
	Keywords []string
	Values   []string
}

// DSN renders the params as a keyword/value connection string with every
// value single-quoted.
func (p ConnectionParams) DSN() string {
	escaper := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	pairs := make([]string, 0, len(p.Keywords))
	for i, k := range p.Keywords {
		if i >= len(p.Values) {
			break
		}
		pairs = append(pairs, k+"='"+escaper.Replace(p.Values[i])+"'")
	}
	return strings.Join(pairs, " ")
}

// String renders the params with every password masked.
func (p ConnectionParams) String() string {
	masked := ConnectionParams{Keywords: p.Keywords, Values: make([]string, len(p.Values))}
	copy(masked.Values, p.Values)
	for i, k := range p.Keywords {
		if strings.Contains(k, "password") && i < len(masked.Values) {
			masked.Values[i] = "****"
		}
	}
	return masked.DSN()
}
