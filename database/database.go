package database

import (
	"fmt"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

type Database struct {
	db             *gorm.DB
	blogConfigRepo *BlogConfigRepo
	postRepo       *PostRepo
}

// New initializes a new Database struct with each repository using a shared GORM database instance
func New(db *gorm.DB) Database {
	return Database{
		db:             db,
		blogConfigRepo: NewBlogConfigRepo(db),
		postRepo:       NewPostRepo(db),
	}
}

// Accessor methods for each repository

func (d Database) BlogConfigRepo() *BlogConfigRepo {
	return d.blogConfigRepo
}

func (d Database) PostRepo() *PostRepo {
	return d.postRepo
}

// Migrate brings the schema up to date with the models.
func (d Database) Migrate() error {
	if d.db == nil {
		return errs.BadRequest("database connection cannot be nil")
	}
	return models.Migrate(d.db)
}

// UseReplicas routes reads to the given postgres replicas; writes stay on the
// primary connection.
func UseReplicas(db *gorm.DB, replicaDSNs ...string) error {
	if len(replicaDSNs) == 0 {
		return nil
	}

	replicas := make([]gorm.Dialector, 0, len(replicaDSNs))
	for _, dsn := range replicaDSNs {
		replicas = append(replicas, postgres.Open(dsn))
	}

	if err := db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   dbresolver.RandomPolicy{},
	})); err != nil {
		return fmt.Errorf("register read replicas: %w", err)
	}
	return nil
}
