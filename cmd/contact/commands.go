package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"portfolio-backend/internal/client"
	"portfolio-backend/internal/domain"
	"portfolio-backend/pkg/validation"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// messageFlags are the form fields; flags win over values read from --file
type messageFlags struct {
	file    string
	name    string
	email   string
	subject string
	message string
	website string
}

var (
	sendFlags     messageFlags
	validateFlags messageFlags
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Validate and submit a message",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(cmd, sendFlags)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a message against the form rules without sending it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd, validateFlags)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Fetch a CSRF token from the backend",
	RunE:  runToken,
}

var resetLimitCmd = &cobra.Command{
	Use:   "reset-limit",
	Short: "Forget the local submission history",
	RunE:  runResetLimit,
}

func init() {
	bindMessageFlags(sendCmd, &sendFlags)
	bindMessageFlags(validateCmd, &validateFlags)
}

func bindMessageFlags(cmd *cobra.Command, f *messageFlags) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML file with name, email, subject and message")
	cmd.Flags().StringVar(&f.name, "name", "", "Your name")
	cmd.Flags().StringVar(&f.email, "email", "", "Your email address")
	cmd.Flags().StringVar(&f.subject, "subject", "", "Subject")
	cmd.Flags().StringVar(&f.message, "message", "", "Message body")
	cmd.Flags().StringVar(&f.website, "website", "", "")
	_ = cmd.Flags().MarkHidden("website")
}

// request builds the submission from --file and the individual flags.
func (f messageFlags) request() (domain.ContactRequest, error) {
	var req domain.ContactRequest

	if f.file != "" {
		loaded, err := loadMessageFile(f.file)
		if err != nil {
			return req, err
		}
		req = loaded
	}

	override(&req.Name, f.name)
	override(&req.Email, f.email)
	override(&req.Subject, f.subject)
	override(&req.Message, f.message)
	override(&req.Website, f.website)
	return req, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func loadMessageFile(path string) (domain.ContactRequest, error) {
	var req domain.ContactRequest

	fh, err := os.Open(path)
	if err != nil {
		return req, fmt.Errorf("open message file: %w", err)
	}
	defer fh.Close()

	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, fmt.Errorf("parse message file %s: %w", path, err)
	}
	return req, nil
}

func runSend(cmd *cobra.Command, f messageFlags) error {
	req, err := f.request()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	db, limiter, err := openState(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	api, err := newAPIClient()
	if err != nil {
		return err
	}

	p := client.NewPipeline(api, limiter)
	if err := p.Init(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: could not fetch a CSRF token; the server will likely refuse the message")
	}

	res, err := p.Submit(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Notice.Text)
	printFieldErrors(out, res.FieldErrors)

	switch res.State {
	case client.StateDelivered, client.StateHoneypotSilent:
		return nil
	default:
		return fmt.Errorf("submission %s", res.State)
	}
}

func runValidate(cmd *cobra.Command, f messageFlags) error {
	req, err := f.request()
	if err != nil {
		return err
	}

	res := validation.Validate(req.Values())
	out := cmd.OutOrStdout()
	if res.Valid {
		fmt.Fprintln(out, "OK")
		return nil
	}

	fmt.Fprintln(out, validation.MsgFixErrors)
	printFieldErrors(out, res.Errors())
	return errors.New("message is not valid")
}

func runToken(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	api, err := newAPIClient()
	if err != nil {
		return err
	}

	token, err := api.FetchCSRFToken(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runResetLimit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	db, _, err := openState(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Submission history cleared.")
	return nil
}

func printFieldErrors(w io.Writer, errs []validation.FieldError) {
	for _, fe := range errs {
		fmt.Fprintf(w, "  %s: %s\n", fe.Field, fe.Message)
	}
}
