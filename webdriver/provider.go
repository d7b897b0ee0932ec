// Package webdriver opens remote sessions on a WebDriver hub.
package webdriver

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/tebeka/selenium"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/env"
	"github.com/grafana/browsermatrix/log"
	"github.com/grafana/browsermatrix/session"
)

// VendorOptions is the W3C extension capability grouping the vendor
// specific settings of a browser session.
const VendorOptions = "sauce:options"

// ErrNoHub is returned when the provider has no hub address.
var ErrNoHub = errors.New("no WebDriver hub configured")

// remote is the part of selenium.WebDriver a session uses.
type remote interface {
	SessionID() string
	Get(url string) error
	Title() (string, error)
	FindElement(by, value string) (element, error)
	Quit() error
}

type element interface {
	SendKeys(keys string) error
	Submit() error
}

type dialFunc func(caps selenium.Capabilities, urlPrefix string) (remote, error)

func dialSelenium(caps selenium.Capabilities, urlPrefix string) (remote, error) {
	wd, err := selenium.NewRemote(caps, urlPrefix)
	if err != nil {
		return nil, err
	}
	return &seleniumRemote{wd}, nil
}

type seleniumRemote struct {
	selenium.WebDriver
}

func (r *seleniumRemote) FindElement(by, value string) (element, error) {
	return r.WebDriver.FindElement(by, value)
}

// Config holds the hub address and credentials.
type Config struct {
	Hub       string
	Username  string
	AccessKey string
}

var _ api.Provider = &Provider{}

// Provider opens sessions through a remote WebDriver hub.
type Provider struct {
	urlPrefix string
	dial      dialFunc
	logger    *log.Logger
}

// NewProvider returns a provider for the hub in conf.
func NewProvider(conf Config, logger *log.Logger) (*Provider, error) {
	prefix, err := HubURL(conf.Hub, conf.Username, conf.AccessKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NullLogger()
	}

	return &Provider{urlPrefix: prefix, dial: dialSelenium, logger: logger}, nil
}

// HubURL returns the WebDriver endpoint of hub with the credentials in
// its user info. A hub without a scheme is reached over https.
func HubURL(hub, username, accessKey string) (string, error) {
	if hub == "" {
		return "", ErrNoHub
	}
	if !strings.Contains(hub, "://") {
		hub = "https://" + hub
	}
	u, err := url.Parse(hub)
	if err != nil {
		return "", errors.Wrapf(err, "parsing hub address %q", hub)
	}
	if username != "" {
		u.User = url.UserPassword(username, accessKey)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/wd/hub"
	}

	return u.String(), nil
}

// Capabilities converts caps to the form the hub expects. Browser sessions
// use W3C capabilities with the job settings nested under VendorOptions;
// device sessions keep every capability at the top level.
func Capabilities(caps api.Capabilities) selenium.Capabilities {
	out := make(selenium.Capabilities, len(caps))
	if caps[env.DeviceName] != "" {
		for k, v := range caps {
			out[k] = v
		}
		return out
	}

	vendor := map[string]interface{}{}
	for k, v := range caps {
		switch k {
		case session.CapName, session.CapBuild:
			vendor[k] = v
		default:
			out[k] = v
		}
	}
	if len(vendor) > 0 {
		out[VendorOptions] = vendor
	}

	return out
}

type dialResult struct {
	r   remote
	err error
}

// NewSession implements api.Provider. If ctx is done before the hub answers,
// the session it eventually creates is quit.
func (p *Provider) NewSession(ctx context.Context, caps api.Capabilities) (api.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "requesting WebDriver session")
	}

	done := make(chan dialResult, 1)
	go func() {
		r, err := p.dial(Capabilities(caps), p.urlPrefix)
		done <- dialResult{r, err}
	}()

	var res dialResult
	select {
	case res = <-done:
	case <-ctx.Done():
		go p.quitLate(done)
		return nil, errors.Wrap(ctx.Err(), "requesting WebDriver session")
	}
	if res.err != nil {
		return nil, errors.Wrap(res.err, "requesting WebDriver session")
	}
	p.logger.Debugf("webdriver:session", "sid:%q test:%q name:%q opened", res.r.SessionID(), session.GetTestName(ctx), caps[session.CapName])

	return &Session{remote: res.r, logger: p.logger}, nil
}

func (p *Provider) quitLate(done <-chan dialResult) {
	res := <-done
	if res.err != nil || res.r == nil {
		return
	}
	if err := res.r.Quit(); err != nil {
		p.logger.Warnf("webdriver:session", "sid:%q quitting abandoned session: %v", res.r.SessionID(), err)
		return
	}
	p.logger.Debugf("webdriver:session", "sid:%q abandoned session quit", res.r.SessionID())
}

// do runs fn and returns its error, or the context error if ctx is done
// first. The WebDriver client has no cancellation, so fn keeps running in
// the background after ctx is done.
func do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
