package user

import "testing"

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("p@ssw0rd")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "" || hash == "p@ssw0rd" {
		t.Fatalf("哈希不应为空或明文: %q", hash)
	}
	if !VerifyPassword("p@ssw0rd", hash) {
		t.Fatalf("正确口令应通过校验")
	}
	if VerifyPassword("wrong", hash) {
		t.Fatalf("错误口令不应通过校验")
	}
}

func TestPasswordTooShort(t *testing.T) {
	if _, err := HashPassword("abc"); err == nil {
		t.Fatalf("过短口令应报错")
	}
}

func TestPasswordHashUnique(t *testing.T) {
	h1, err := HashPassword("p@ssw0rd")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword("p@ssw0rd")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("两次哈希应因随机盐不同而不同")
	}
}
