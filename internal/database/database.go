// Package database ouvre les connexions aux bases (MongoDB, Redis, ScyllaDB, Elasticsearch, MinIO)
// et fournit les dépôts MongoDB et le journal d'audit ScyllaDB.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"bazaar_back_end/internal/cache"
	"bazaar_back_end/internal/config"
)

// Connections regroupe les clients ouverts au démarrage.
// Scylla, Elastic et MinIO sont nil quand ils ne sont pas configurés.
type Connections struct {
	Mongo   *mongo.Client
	DB      *mongo.Database
	Redis   *cache.RedisStore
	Scylla  *gocql.Session
	Elastic *elasticsearch.Client
	MinIO   *minio.Client
}

// Connect ouvre toutes les connexions. MongoDB et Redis sont obligatoires.
func Connect(ctx context.Context, cfg *config.Config) (*Connections, error) {
	conns := &Connections{}

	// 1. MongoDB
	client, err := connectMongo(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	conns.Mongo = client
	conns.DB = client.Database(cfg.Mongo.Database)
	if err := EnsureIndexes(ctx, conns.DB); err != nil {
		conns.Close(ctx)
		return nil, fmt.Errorf("création index MongoDB: %w", err)
	}

	// 2. Redis
	conns.Redis, err = cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		conns.Close(ctx)
		return nil, fmt.Errorf("connexion Redis: %w", err)
	}

	// 3. ScyllaDB (audit)
	if cfg.Scylla.Enabled() {
		conns.Scylla, err = connectScylla(cfg.Scylla)
		if err != nil {
			conns.Close(ctx)
			return nil, err
		}
	} else {
		zap.S().Warn("⚠️ ScyllaDB non configuré, journal d'audit désactivé")
	}

	// 4. Elasticsearch
	if cfg.Elastic.Enabled() {
		conns.Elastic, err = connectElastic(cfg.Elastic)
		if err != nil {
			conns.Close(ctx)
			return nil, err
		}
	} else {
		zap.S().Warn("⚠️ Elasticsearch non configuré, recherche sur MongoDB")
	}

	// 5. MinIO
	if cfg.MinIO.Enabled() {
		conns.MinIO, err = connectMinIO(ctx, cfg.MinIO)
		if err != nil {
			conns.Close(ctx)
			return nil, err
		}
	} else {
		zap.S().Warn("⚠️ MinIO non configuré, upload d'images désactivé")
	}

	zap.S().Info("✅ Toutes les bases de données sont connectées")
	return conns, nil
}

// Close ferme les connexions ouvertes.
func (c *Connections) Close(ctx context.Context) {
	if c.Scylla != nil {
		c.Scylla.Close()
		zap.S().Info("🔌 Session ScyllaDB fermée")
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			zap.S().Warnf("⚠️ Fermeture Redis: %v", err)
		}
	}
	if c.Mongo != nil {
		if err := c.Mongo.Disconnect(ctx); err != nil {
			zap.S().Warnf("⚠️ Fermeture MongoDB: %v", err)
		}
		zap.S().Info("🔌 Connexion MongoDB fermée")
	}
}

// =============================================
// MONGODB
// =============================================

func connectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connexion MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	zap.S().Infof("✅ Connecté à MongoDB (base: %s)", cfg.Database)
	return client, nil
}

// =============================================
// SCYLLA DB
// =============================================

func createScyllaCluster(cfg config.ScyllaConfig) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.Timeout
	if cluster.Timeout <= 0 {
		cluster.Timeout = 5 * time.Second
	}
	if cfg.NumConns > 0 {
		cluster.NumConns = cfg.NumConns
	}
	cluster.MaxWaitSchemaAgreement = 30 * time.Second
	cluster.ReconnectInterval = time.Second
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	return cluster
}

func connectScylla(cfg config.ScyllaConfig) (*gocql.Session, error) {
	if cfg.Keyspace == "" {
		return nil, errors.New("keyspace ScyllaDB manquant")
	}
	session, err := createScyllaCluster(cfg).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("erreur création session pour %s: %w", cfg.Keyspace, err)
	}
	if err := EnsureAuditTables(session); err != nil {
		session.Close()
		return nil, fmt.Errorf("création tables audit: %w", err)
	}
	zap.S().Infof("✅ Nouvelle session ScyllaDB pour keyspace '%s'", cfg.Keyspace)
	return session, nil
}

// =============================================
// ELASTICSEARCH
// =============================================

func connectElastic(cfg config.ElasticConfig) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.User,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("création client Elasticsearch: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("connexion Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("connexion Elasticsearch: %s", res.Status())
	}

	zap.S().Info("✅ Connecté à Elasticsearch")
	return client, nil
}

// =============================================
// MINIO
// =============================================

func connectMinIO(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connexion MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("vérification bucket MinIO: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("création bucket MinIO: %w", err)
		}
		zap.S().Infof("🪣 Bucket créé : %s", cfg.Bucket)
	} else {
		zap.S().Infof("🪣 Bucket MinIO déjà présent : %s", cfg.Bucket)
	}

	zap.S().Infof("✅ Connecté à MinIO : %s", cfg.Endpoint)
	return client, nil
}
