// Package session 保存一次作答会话的客户端状态：登录数据、shopperId、所选作答方式
// 生命周期：登录时创建，退出登录或提交成功后清空
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"puls_survey/internal/model"
)

const (
	KeyLoginData = "loginData"
	KeyShopperID = "shopperId"
	KeyModality  = "selectedStudyType"
	KeyTerms     = "termsAccepted"
)

var ErrNoSession = errors.New("no active session")

// Store 会话存储，值按 JSON 序列化
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

func getJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode session key %s: %w", key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw)
}

// Begin 清空旧会话后写入新的登录数据
func Begin(ctx context.Context, s Store, sess model.Session) error {
	if err := s.Clear(ctx); err != nil {
		return err
	}
	return setJSON(ctx, s, KeyLoginData, sess)
}

// Current 返回当前登录数据，未登录时返回 ErrNoSession
func Current(ctx context.Context, s Store) (*model.Session, error) {
	var sess model.Session
	ok, err := getJSON(ctx, s, KeyLoginData, &sess)
	if err != nil {
		return nil, err
	}
	if !ok || sess.AccessToken == "" {
		return nil, ErrNoSession
	}
	return &sess, nil
}

func SetShopperID(ctx context.Context, s Store, id int) error {
	return setJSON(ctx, s, KeyShopperID, id)
}

func ShopperID(ctx context.Context, s Store) (int, bool, error) {
	var id int
	ok, err := getJSON(ctx, s, KeyShopperID, &id)
	return id, ok, err
}

func SetModality(ctx context.Context, s Store, m model.Modality) error {
	return setJSON(ctx, s, KeyModality, m)
}

func Modality(ctx context.Context, s Store) (model.Modality, bool, error) {
	var m model.Modality
	ok, err := getJSON(ctx, s, KeyModality, &m)
	return m, ok, err
}

func SetTermsAccepted(ctx context.Context, s Store, accepted bool) error {
	return setJSON(ctx, s, KeyTerms, accepted)
}

func TermsAccepted(ctx context.Context, s Store) (bool, error) {
	var accepted bool
	_, err := getJSON(ctx, s, KeyTerms, &accepted)
	return accepted, err
}
