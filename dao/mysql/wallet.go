package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"xhs-creator/models"
)

// ErrInsufficientPower 余额不足，扣费被拒绝
var ErrInsufficientPower = errors.New("insufficient power balance")

// GetBalance 查询用户积分余额，没有账户视为 0
func (s *Store) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	var balance int64
	query := `SELECT power FROM t_user_power WHERE user_id = ?`
	if err := s.db.GetContext(ctx, &balance, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

// Debit 扣费：余额充足时在一个事务内扣减余额并写入流水，返回流水号。
// 条件更新保证并发扣费不会把余额扣成负数。
func (s *Store) Debit(ctx context.Context, userID uint64, amount int64, meta models.TxMeta) (string, error) {
	if amount <= 0 {
		return "", errors.New("debit amount must be greater than 0")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("debit: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE t_user_power SET power = power - ?, updated_at = NOW()
			WHERE user_id = ? AND power >= ?`,
		amount, userID, amount)
	if err != nil {
		return "", fmt.Errorf("debit: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if rows == 0 {
		return "", ErrInsufficientPower
	}

	accountNo := uuid.NewString()
	if err = insertTransaction(ctx, tx, accountNo, userID, models.TxTypeDebit, amount, meta); err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", err
	}
	return accountNo, nil
}

// Credit 加积分（补偿退款、充值），同样留流水
func (s *Store) Credit(ctx context.Context, userID uint64, amount int64, meta models.TxMeta) (string, error) {
	if amount <= 0 {
		return "", errors.New("credit amount must be greater than 0")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("credit: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO t_user_power (user_id, power, created_at, updated_at)
			VALUES (?, ?, NOW(), NOW())
			ON DUPLICATE KEY UPDATE power = power + ?, updated_at = NOW()`,
		userID, amount, amount); err != nil {
		return "", fmt.Errorf("credit: %w", err)
	}

	accountNo := uuid.NewString()
	if err = insertTransaction(ctx, tx, accountNo, userID, models.TxTypeCredit, amount, meta); err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", err
	}
	return accountNo, nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, accountNo string, userID uint64, txType string, amount int64, meta models.TxMeta) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO t_power_transactions
			(account_no, user_id, tx_type, amount, biz_type, page_type, task_id, page_index, remark, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())`,
		accountNo, userID, txType, amount, meta.BizType, meta.PageType, meta.TaskID, meta.PageIndex, meta.Remark)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
