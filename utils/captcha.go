package utils

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
)

const captchaTTL = 10 * time.Minute

// redisCaptchaStore keeps answers in redis so captchas survive across instances.
type redisCaptchaStore struct{}

func (redisCaptchaStore) key(id string) string { return "captcha:" + id }

func (s redisCaptchaStore) Set(id string, value string) error {
	rc := GetRedis()
	if rc == nil {
		return base64Captcha.DefaultMemStore.Set(id, value)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return rc.Set(ctx, s.key(id), value, captchaTTL).Err()
}

func (s redisCaptchaStore) Get(id string, clear bool) string {
	rc := GetRedis()
	if rc == nil {
		return base64Captcha.DefaultMemStore.Get(id, clear)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var (
		v   string
		err error
	)
	if clear {
		v, err = rc.GetDel(ctx, s.key(id)).Result()
	} else {
		v, err = rc.Get(ctx, s.key(id)).Result()
	}
	if err != nil {
		return ""
	}
	return v
}

func (s redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}

var captchaStore base64Captcha.Store = redisCaptchaStore{}

// GenerateCaptcha creates a digit captcha and returns (id, dataURI) for the client to display.
func GenerateCaptcha() (string, string, error) {
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	id, b64, _, err := base64Captcha.NewCaptcha(driver, captchaStore).Generate()
	return id, b64, err
}

// VerifyCaptcha checks the answer and consumes the captcha either way.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, true)
}
