package main

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/niczy/zombies/internal/access"
	"github.com/niczy/zombies/internal/audit"
	"github.com/niczy/zombies/internal/config"
	"github.com/niczy/zombies/internal/game"
	arenaservice "github.com/niczy/zombies/internal/services/arena"
	"github.com/niczy/zombies/internal/services/wire"
	"github.com/niczy/zombies/internal/session"
	"github.com/niczy/zombies/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	tuning, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		log.Fatalf("Failed to load tuning: %v", err)
	}
	programID, err := cfg.Program()
	if err != nil {
		log.Fatalf("Invalid program id: %v", err)
	}

	st, replay, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	verifyKey, err := cfg.VerifyKey()
	if err != nil {
		log.Fatalf("Invalid authority key: %v", err)
	}
	var verifier access.TokenVerifier
	if verifyKey != nil {
		reg, err := session.OpenSQLiteRegistry(cfg.SessionDB)
		if err != nil {
			log.Fatalf("Failed to open session registry: %v", err)
		}
		defer reg.Close()
		verifier = session.NewVerifier(cfg.SessionIssuer, verifyKey, reg, nil)
		log.Printf("Delegated sessions enabled (issuer %s)", cfg.SessionIssuer)
	}

	var opts []game.Option
	if cfg.AuditDir != "" {
		logger := audit.NewLogger(cfg.AuditDir, "audit", nil)
		defer logger.Close()
		opts = append(opts, game.WithAudit(logger))
		log.Printf("Audit log writing to %s", cfg.AuditDir)
	}

	program := game.New(game.Config{
		ProgramID:    programID,
		RestInterval: tuning.RestInterval(),
	}, st, access.NewGate(programID, verifier), opts...)

	lis, err := net.Listen("tcp", cfg.ArenaAddr)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	s := arenaservice.NewGRPCServer(program, cfg.MaxClockSkew, replay)

	log.Printf("ArenaService server listening on %s (program %s, storage %s)", cfg.ArenaAddr, programID, cfg.Storage)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}

// openStorage returns the account store and the replay cache shared by every
// replica using it. The in-memory backend keeps replays per process.
func openStorage(cfg config.Config) (storage.Storage, wire.ReplayCache, error) {
	if cfg.Storage != config.StorageRedis {
		return storage.NewInMemoryStorage(), nil, nil
	}

	var objects storage.ObjectStore = storage.NewInMemoryObjectStore()
	if cfg.S3Bucket != "" {
		objects = storage.NewS3ObjectStore(newS3Client(cfg), cfg.S3Bucket, cfg.S3Prefix)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	st := storage.NewRedisStorage(rdb, objects, cfg.RedisPrefix)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		return nil, nil, err
	}
	return st, wire.NewRedisReplayCache(rdb, cfg.RedisPrefix), nil
}

func newS3Client(cfg config.Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.S3Region,
		UsePathStyle: cfg.S3PathStyle,
	}
	if cfg.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.S3Endpoint)
	}
	if cfg.S3AccessKey != "" {
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.S3AccessKey,
				SecretAccessKey: cfg.S3SecretKey,
				Source:          "zombies-env",
			}, nil
		}))
	}
	return s3.New(opts)
}
