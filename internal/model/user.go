package model

// User はサービス利用ユーザーを表す。
// UsernameがJWTのsubjectおよびメールボックスのIdentityとして使われる。
type User struct {
	ID             int64
	Username       string
	HashedPassword string
}

// Subscriber はTelegramで期限通知を受け取る購読者を表す。
type Subscriber struct {
	ID        int64
	ChatID    string
	Username  string
	FirstName string
	LastName  string
}
