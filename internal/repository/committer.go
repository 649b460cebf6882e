package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/edustore/material-module/internal/domain/model"
)

// MaterialCommitter — атомарная фиксация материала вместе с тегами.
// Выделен в интерфейс, чтобы сервисный слой не зависел от pgx-транзакций.
type MaterialCommitter interface {
	// CommitCreate фиксирует новый материал и связывает его с тегами
	// в одной транзакции.
	CommitCreate(ctx context.Context, m *model.Material, tags []string) error
	// CommitUpdate обновляет материал и заменяет его теги в одной
	// транзакции. tags == nil — теги не трогаются.
	CommitUpdate(ctx context.Context, m *model.Material, tags []string) error
}

// txCommitter — реализация MaterialCommitter поверх TxRunner.
type txCommitter struct {
	runner *TxRunner
}

// NewMaterialCommitter создаёт транзакционный коммиттер материалов.
func NewMaterialCommitter(pool *pgxpool.Pool) MaterialCommitter {
	return &txCommitter{runner: NewTxRunner(pool)}
}

func (c *txCommitter) CommitCreate(ctx context.Context, m *model.Material, tags []string) error {
	return c.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewMaterialRepository(tx).Create(ctx, m); err != nil {
			return err
		}
		return associateTags(ctx, tx, m.ID, tags, false)
	})
}

func (c *txCommitter) CommitUpdate(ctx context.Context, m *model.Material, tags []string) error {
	return c.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewMaterialRepository(tx).Update(ctx, m); err != nil {
			return err
		}
		if tags == nil {
			return nil
		}
		return associateTags(ctx, tx, m.ID, tags, true)
	})
}

// associateTags создаёт недостающие теги и связывает их с материалом.
func associateTags(ctx context.Context, tx pgx.Tx, materialID string, tags []string, replace bool) error {
	if len(tags) == 0 && !replace {
		return nil
	}

	tagRepo := NewTagRepository(tx)
	ids := make([]int64, 0, len(tags))
	for _, name := range tags {
		tag, err := tagRepo.FindOrCreate(ctx, name)
		if err != nil {
			return err
		}
		ids = append(ids, tag.ID)
	}

	if replace {
		return tagRepo.ReplaceAssociations(ctx, materialID, ids)
	}
	return tagRepo.Associate(ctx, materialID, ids)
}
