package main

import (
	"log"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/niczy/zombies/internal/config"
	authorityservice "github.com/niczy/zombies/internal/services/authority"
	"github.com/niczy/zombies/internal/services/wire"
	"github.com/niczy/zombies/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	programID, err := cfg.Program()
	if err != nil {
		log.Fatalf("Invalid program id: %v", err)
	}
	key, err := cfg.SigningKey()
	if err != nil {
		log.Fatalf("Invalid signing key: %v", err)
	}

	reg, err := session.OpenSQLiteRegistry(cfg.SessionDB)
	if err != nil {
		log.Fatalf("Failed to open session registry: %v", err)
	}
	defer reg.Close()

	issuer := session.NewIssuer(cfg.SessionIssuer, key, reg, cfg.SessionMaxTTL, nil)

	var replay wire.ReplayCache
	if cfg.Storage == config.StorageRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		replay = wire.NewRedisReplayCache(rdb, cfg.RedisPrefix)
	}

	lis, err := net.Listen("tcp", cfg.AuthorityAddr)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	s := authorityservice.NewGRPCServer(issuer, programID, cfg.MaxClockSkew, replay)

	log.Printf("AuthorityService server listening on %s (issuer %s, program %s)", cfg.AuthorityAddr, cfg.SessionIssuer, programID)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
