package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"client_go/internal/api"
	"client_go/internal/bus"
	"client_go/internal/directory"
	"client_go/internal/domain"
	"client_go/internal/logger"
	"client_go/internal/push"
	"client_go/internal/session"
	"client_go/internal/tui"
	"client_go/internal/view"
)

// app is the wired client for one profile.
type app struct {
	log     *zap.Logger
	sess    *session.Session
	profile *session.Profile
	api     *api.Client
	push    *push.Client
	members *bus.Bus[domain.MemberAdded]
	notices *view.Notices
	dir     *directory.Directory
	view    *view.View

	eventsSub domain.Releaser
}

// newLogger writes to the profile's log file when the terminal belongs to
// the full-screen client.
func newLogger(fullscreen bool) (*zap.Logger, error) {
	sink := cfg.LogSink
	if fullscreen && (sink == "" || sink == "stderr" || sink == "stdout") {
		sink = "file:" + filepath.Join(cfg.ProfileDir(), "zchat.log")
	}
	return logger.New(cfg.LogLevel, sink)
}

func newApp(ctx context.Context, fullscreen bool) (*app, error) {
	sess, profile, err := session.Open(cfg.ProfileDir())
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, fmt.Errorf("not logged in, run `zchat login`")
		}
		return nil, err
	}
	if profile.APIURL != "" && profile.APIURL != cfg.APIURL {
		return nil, fmt.Errorf("profile %q belongs to %s, run `zchat login` again", cfg.Profile, profile.APIURL)
	}

	log, err := newLogger(fullscreen)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("profile", cfg.Profile))

	a := &app{
		log:     log,
		sess:    sess,
		profile: profile,
		api:     api.New(cfg.APIURL, sess, cfg.HTTPTimeout, log.Named("api")),
		members: bus.New[domain.MemberAdded](),
		notices: view.NewNotices(16),
	}
	a.push = push.New(cfg.WSURL, sess, log.Named("push"), push.Options{})
	a.dir = directory.New(a.api, sess, a.notices, a.members, log.Named("directory"))
	a.view = view.New(view.Deps{
		History:  a.api,
		Sender:   a.api,
		Direct:   a.api,
		Rooms:    a.push,
		Events:   a.push,
		Typing:   a.push,
		Members:  a.members,
		Identity: sess,
		Notifier: a.notices,
		Log:      log.Named("view"),
	})

	a.eventsSub = a.push.Subscribe(func(ev domain.Event) {
		active := ""
		if ref := a.view.Snapshot().Ref; ref != nil {
			active = ref.ID
		}
		a.dir.Observe(ev, active)
	})
	if err := a.view.Start(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// runPush keeps the push connection up until ctx ends. Giving up on
// reconnecting is reported as a notice rather than ending the client.
func (a *app) runPush(ctx context.Context) error {
	err := a.push.Run(ctx)
	switch {
	case err == nil, errors.Is(err, domain.ErrUnauthorized):
	default:
		a.notices.Notify(view.Notice{Level: view.LevelError, Text: "Connection lost", Err: err})
	}
	return nil
}

// fail clears the stored session when the server rejected it.
func (a *app) fail(err error) error {
	if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, tui.ErrSessionExpired) {
		if cerr := session.ClearProfile(cfg.ProfileDir()); cerr != nil {
			a.log.Warn("profile_clear_failed", zap.Error(cerr))
		}
		a.log.Info("session_expired", zap.String("reason", a.sess.Reason()))
		return tui.ErrSessionExpired
	}
	return err
}

// remember stores the active conversation for the next start.
func (a *app) remember() {
	ref := a.view.Snapshot().Ref
	if ref == nil || a.sess.Token() == "" {
		return
	}
	p := *a.profile
	r := *ref
	p.LastChat = &r
	if u, ok := a.sess.User(); ok {
		p.User = &u
	}
	if err := session.SaveProfile(cfg.ProfileDir(), &p); err != nil {
		a.log.Warn("profile_save_failed", zap.Error(err))
	}
}

func (a *app) close() {
	if a.eventsSub != nil {
		a.eventsSub.Close()
	}
	a.view.Close()
	_ = a.log.Sync()
}
