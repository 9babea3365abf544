package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/config"
	"github.com/acksell/larder/dynamodb/ddbsdk"
	"github.com/acksell/larder/dynamodb/ddbstore"
	"github.com/acksell/larder/observability"
	"github.com/acksell/larder/planner"
	"github.com/acksell/larder/repository"
	"github.com/acksell/larder/schema"
)

// app is everything a command needs, built once from the config.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *observability.Collector
	cache   *cache.Cache
	repos   *repository.Repositories
	planner *planner.Planner

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: observability.NewCollector("larder"),
	}
	backend, err := a.backend(ctx)
	if err != nil {
		return nil, err
	}

	opts := []ddbsdk.Option{
		ddbsdk.WithLogger(log.Named("ddbsdk")),
		ddbsdk.WithMetrics(a.metrics),
		ddbsdk.WithBatchConfig(cfg.Batch),
	}
	if cfg.Breaker.Enabled {
		opts = append(opts, ddbsdk.WithBreaker(cfg.BreakerSettings()))
	}
	db := ddbsdk.New(backend, opts...)

	repoOpts := []repository.Option{repository.WithLogger(log.Named("repository"))}
	if !cfg.Cache.Disabled {
		a.cache = cache.New(
			cache.WithLogger(log.Named("cache")),
			cache.WithMetrics(a.metrics),
			cache.WithTTLs(cfg.Cache.TTLs),
		)
		a.closers = append(a.closers, func() error {
			a.cache.Close()
			return nil
		})
		repoOpts = append(repoOpts, repository.WithCache(a.cache))
	}
	a.repos = repository.New(db, schema.For(cfg.Table), repoOpts...)
	a.planner = planner.New(a.repos.MealPlans, a.repos.Recipes, planner.WithLogger(log.Named("planner")))
	return a, nil
}

// backend opens the local badger store or an AWS DynamoDB client.
func (a *app) backend(ctx context.Context) (ddbsdk.AWSDynamoClientV2, error) {
	switch a.cfg.Store.Backend {
	case config.BackendAWS:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if a.cfg.Store.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(a.cfg.Store.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		endpoint := a.cfg.Store.Endpoint
		return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}), nil
	default:
		store, err := ddbstore.New(ddbstore.StoreOptions{
			Path:     a.cfg.Store.DataDir,
			InMemory: a.cfg.Store.InMemory,
			Logger:   a.log,
		}, schema.NewTable(a.cfg.Table))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
