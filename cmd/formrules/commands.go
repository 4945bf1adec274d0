package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	formrules "github.com/goliatone/go-formrules"
	"github.com/goliatone/go-formrules/internal/config"
	"github.com/goliatone/go-formrules/pkg/access"
	"github.com/goliatone/go-formrules/pkg/expand"
	"github.com/goliatone/go-formrules/pkg/render"
	"github.com/goliatone/go-formrules/pkg/renderers/tui"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/session"
	"github.com/goliatone/go-formrules/pkg/submission"
	"github.com/goliatone/go-formrules/pkg/values"
)

type violation struct {
	File     string `json:"file"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
	Warning  bool   `json:"warning,omitempty"`
}

// check lints every path given, or the configured schema when none is.
// Warnings are printed but only blocking issues fail the command.
func (a *app) check(ctx context.Context, paths []string) error {
	type source struct {
		name string
		load func() (schema.FormSchema, error)
	}
	var sources []source
	for _, path := range paths {
		path := path
		sources = append(sources, source{name: path, load: func() (schema.FormSchema, error) { return schema.LoadFile(path) }})
	}
	if len(sources) == 0 {
		name := a.cfg.Schema
		if name == "" {
			name = a.cfg.FormID
		}
		sources = append(sources, source{name: name, load: func() (schema.FormSchema, error) { return a.loadForm(ctx) }})
	}

	var violations []violation
	for _, src := range sources {
		form, err := src.load()
		if err != nil {
			violations = append(violations, violation{File: src.name, Message: err.Error()})
			continue
		}
		for _, issue := range schema.Check(form) {
			violations = append(violations, violation{
				File:     src.name,
				Location: issue.Path,
				Message:  issue.Message,
				Warning:  issue.Warning,
			})
		}
		if _, err := expand.New(form); err != nil && schema.Validate(form) == nil {
			violations = append(violations, violation{File: src.name, Message: err.Error()})
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].File == violations[j].File {
			return violations[i].Location < violations[j].Location
		}
		return violations[i].File < violations[j].File
	})

	blocking := 0
	for _, v := range violations {
		if !v.Warning {
			blocking++
		}
	}

	err := a.emit(map[string]any{"violations": violations, "blocking": blocking}, func() string {
		var b strings.Builder
		for _, v := range violations {
			level := "error"
			if v.Warning {
				level = "warning"
			}
			location := v.Location
			if location == "" {
				location = "(form)"
			}
			fmt.Fprintf(&b, "%s: %s: %s -> %s\n", level, v.File, location, v.Message)
		}
		if len(violations) == 0 {
			b.WriteString("ok\n")
		}
		return b.String()
	})
	if err != nil {
		return err
	}
	if blocking > 0 {
		return errFailed
	}
	return nil
}

// prefilled loads the schema and the --values document into a new session.
func (a *app) prefilled(ctx context.Context, opts ...session.Option) (*session.Session, []string, error) {
	form, err := a.loadValidForm(ctx)
	if err != nil {
		return nil, nil, err
	}
	if a.cfg.Values == "" {
		return nil, nil, errors.New("--values is required")
	}
	data, err := os.ReadFile(a.cfg.Values)
	if err != nil {
		return nil, nil, fmt.Errorf("read values: %w", err)
	}
	vals, err := values.Parse(data)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]session.Option{session.WithLogger(a.logger), session.WithValidator(a.validator())}, opts...)
	s, err := session.New(form, opts...)
	if err != nil {
		return nil, nil, err
	}
	ignored, err := formrules.Prefill(s, vals,
		formrules.WithPrefillLogger(a.logger),
		formrules.WithFileLoader(func(path string) (values.FileRef, error) {
			return readFileRef(relativeTo(a.cfg.Values, path))
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	return s, ignored, nil
}

func readFileRef(path string) (values.FileRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return values.FileRef{}, fmt.Errorf("read file answer: %w", err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return values.FileRef{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

func (a *app) validate(ctx context.Context) error {
	s, ignored, err := a.prefilled(ctx)
	if err != nil {
		return err
	}
	report := s.Validate()
	if err := a.emitSession(s, ignored); err != nil {
		return err
	}
	if !report.Valid() {
		return errFailed
	}
	return nil
}

func (a *app) submit(ctx context.Context) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	s, ignored, err := a.prefilled(ctx, session.WithSubmitter(c))
	if err != nil {
		return err
	}

	req, err := s.Submit(ctx)
	var issuer session.ServerIssuer
	switch {
	case err == nil:
		a.logger.Infow("submission accepted", "form", req.FormID, "answers", len(req.Answers))
		return a.emit(req, func() string {
			return fmt.Sprintf("submitted %s (%d answers)\n", req.FormID, len(req.Answers))
		})
	case errors.Is(err, session.ErrInvalid), errors.As(err, &issuer):
		if emitErr := a.emitSession(s, ignored); emitErr != nil {
			return emitErr
		}
		return errFailed
	default:
		return err
	}
}

func (a *app) fill(ctx context.Context) error {
	driver := a.driver
	if driver == nil {
		if !stdinIsTerminal() {
			return errors.New("fill needs an interactive terminal; use validate or submit with --values")
		}
		driver = tui.NewSurveyDriver()
	}

	form, err := a.loadValidForm(ctx)
	if err != nil {
		return err
	}
	opts := []session.Option{session.WithLogger(a.logger), session.WithValidator(a.validator())}
	if a.cfg.Endpoint != "" {
		c, err := a.client()
		if err != nil {
			return err
		}
		opts = append(opts, session.WithSubmitter(c))
	}
	s, err := session.New(form, opts...)
	if err != nil {
		return err
	}

	filler := tui.New(tui.WithPromptDriver(driver), tui.WithValidator(a.validator()), tui.WithLogger(a.logger))
	if err := filler.Fill(ctx, s); err != nil {
		return err
	}

	if a.cfg.Endpoint == "" {
		req, _ := submission.Build(s.FormID(), s.Fields(), s.Values())
		return a.emit(req, func() string { return a.summaryText(s) })
	}

	for {
		answered := a.summaryText(s)
		req, err := s.Submit(ctx)
		if err == nil {
			a.logger.Infow("submission accepted", "form", req.FormID)
			return a.emit(req, func() string { return answered + "submitted\n" })
		}
		var issuer session.ServerIssuer
		if !errors.Is(err, session.ErrInvalid) && !errors.As(err, &issuer) {
			return err
		}
		summary := render.NewSummary(s)
		if err := driver.Info(ctx, a.summaryText(s)); err != nil {
			return err
		}
		invalid := summary.Invalid()
		if len(invalid) == 0 {
			return errFailed
		}
		if err := filler.FillInvalid(ctx, s, invalid); err != nil {
			return err
		}
	}
}

func (a *app) openapi(ctx context.Context) error {
	form, err := a.loadValidForm(ctx)
	if err != nil {
		return err
	}
	doc, err := formrules.Document(form)
	if err != nil {
		return err
	}
	format := a.format
	if format == config.OutputPretty {
		format = config.OutputYAML
	}
	return a.emitAs(format, doc, nil)
}

func (a *app) token() error {
	if a.cfg.Secret == "" {
		return errors.New("--secret is required")
	}
	subject := a.cfg.Subject
	if subject == "" {
		subject = os.Getenv("USER")
	}
	signed, sess, err := access.IssueToken([]byte(a.cfg.Secret), subject, access.RoleAdmin, access.WithIssuer("formrules"))
	if err != nil {
		return err
	}
	a.logger.Infow("admin token issued", "subject", sess.Subject, "expires_at", sess.ExpiresAt)
	return a.emit(map[string]any{
		"token":     signed,
		"subject":   sess.Subject,
		"expiresAt": sess.ExpiresAt,
	}, func() string { return signed + "\n" })
}
