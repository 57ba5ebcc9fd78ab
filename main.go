package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/jdwit/s3-image-resizer/internal/config"
	"github.com/jdwit/s3-image-resizer/internal/processor"
)

func createSession(endpoint string) (*session.Session, error) {
	if endpoint != "" {
		// localstack
		return session.NewSession(&aws.Config{
			Endpoint:         aws.String(endpoint),
			DisableSSL:       aws.Bool(true),
			S3ForcePathStyle: aws.Bool(true),
		})
	}

	return session.NewSession()
}

func setupLogging(cfg config.Config, inLambda bool) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if inLambda || cfg.LogJSON {
		log.SetFormatter(log.JSONFormatter)
	}
	// Lambda stamps every line itself.
	log.SetReportTimestamp(!inLambda)
}

func initSentry(cfg config.Config) error {
	if cfg.SentryDSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
	})
}

func main() {
	inLambda := os.Getenv("AWS_LAMBDA_RUNTIME_API") != ""

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	setupLogging(cfg, inLambda)

	if err := initSentry(cfg); err != nil {
		log.Fatal("sentry.Init", "err", err)
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	sess, err := createSession(cfg.AWSEndpoint)
	if err != nil {
		log.Fatal("failed to create session", "err", err)
	}

	ip, err := processor.NewImageProcessor(sess, cfg)
	if err != nil {
		log.Fatal("failed to create processor", "err", err)
	}

	if inLambda {
		log.Info("running in AWS Lambda environment")
		lambda.Start(ip.HandleLambdaEvent)
		return
	}

	log.Info("running in cli mode")
	if err := newRootCmd(ip).ExecuteContext(context.Background()); err != nil {
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}
