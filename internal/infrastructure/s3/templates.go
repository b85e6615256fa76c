package s3infra

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	"log/slog"
	texttemplate "text/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/account-validity/internal/config"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// Template object keys, both in the S3 bucket and the embedded defaults.
const (
	noticeHTMLKey        = "notice_expiry.html.tmpl"
	noticeTextKey        = "notice_expiry.txt.tmpl"
	renewedKey           = "account_renewed.html.tmpl"
	previouslyRenewedKey = "account_previously_renewed.html.tmpl"
	invalidTokenKey      = "invalid_token.html.tmpl"
)

// NoticeVars feeds the renewal notice templates.
type NoticeVars struct {
	AppName        string
	DisplayName    string
	ExpirationDate string
	RenewalURL     string // set for link-format tokens
	RenewalToken   string // set for manual-format tokens
}

// PageVars feeds the renew endpoint's HTML response pages.
type PageVars struct {
	AppName        string
	ExpirationDate string
}

// Templates renders renewal notices and the renew endpoint pages. Deployments
// override individual templates by dropping objects in the template bucket;
// anything missing falls back to the embedded defaults.
type Templates struct {
	noticeHTML        *htmltemplate.Template
	noticeText        *texttemplate.Template
	renewed           *htmltemplate.Template
	previouslyRenewed *htmltemplate.Template
	invalidToken      *htmltemplate.Template
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(cfg *config.Config) *s3.Client {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}

	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		panic("failed to load AWS config for S3: " + err.Error())
	}

	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// LoadTemplates resolves all five templates, preferring the bucket copy when
// client and bucket are set. Parse failures in a bucket copy are fatal rather
// than silently falling back, so a broken override never ships half-rendered.
func LoadTemplates(ctx context.Context, client *s3.Client, bucket string) (*Templates, error) {
	t := &Templates{}
	var err error

	if t.noticeHTML, err = loadHTML(ctx, client, bucket, noticeHTMLKey); err != nil {
		return nil, err
	}
	if t.noticeText, err = loadText(ctx, client, bucket, noticeTextKey); err != nil {
		return nil, err
	}
	if t.renewed, err = loadHTML(ctx, client, bucket, renewedKey); err != nil {
		return nil, err
	}
	if t.previouslyRenewed, err = loadHTML(ctx, client, bucket, previouslyRenewedKey); err != nil {
		return nil, err
	}
	if t.invalidToken, err = loadHTML(ctx, client, bucket, invalidTokenKey); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Templates) RenderNoticeHTML(vars NoticeVars) (string, error) {
	return renderHTML(t.noticeHTML, vars)
}

func (t *Templates) RenderNoticeText(vars NoticeVars) (string, error) {
	var buf bytes.Buffer
	if err := t.noticeText.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render notice text: %w", err)
	}
	return buf.String(), nil
}

func (t *Templates) RenderRenewedPage(vars PageVars) (string, error) {
	return renderHTML(t.renewed, vars)
}

func (t *Templates) RenderPreviouslyRenewedPage(vars PageVars) (string, error) {
	return renderHTML(t.previouslyRenewed, vars)
}

func (t *Templates) RenderInvalidTokenPage(vars PageVars) (string, error) {
	return renderHTML(t.invalidToken, vars)
}

func renderHTML(tmpl *htmltemplate.Template, vars any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func loadHTML(ctx context.Context, client *s3.Client, bucket, key string) (*htmltemplate.Template, error) {
	src, err := fetch(ctx, client, bucket, key)
	if err != nil {
		return nil, err
	}
	return htmltemplate.New(key).Parse(src)
}

func loadText(ctx context.Context, client *s3.Client, bucket, key string) (*texttemplate.Template, error) {
	src, err := fetch(ctx, client, bucket, key)
	if err != nil {
		return nil, err
	}
	return texttemplate.New(key).Parse(src)
}

func fetch(ctx context.Context, client *s3.Client, bucket, key string) (string, error) {
	if client != nil && bucket != "" {
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			defer out.Body.Close()
			b, readErr := io.ReadAll(out.Body)
			if readErr != nil {
				return "", fmt.Errorf("read template %s: %w", key, readErr)
			}
			return string(b), nil
		}
		slog.Info("template not in bucket, using embedded default", "key", key)
	}

	b, err := defaultTemplates.ReadFile("templates/" + key)
	if err != nil {
		return "", fmt.Errorf("embedded template %s: %w", key, err)
	}
	return string(b), nil
}
