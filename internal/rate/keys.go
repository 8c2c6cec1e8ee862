package rate

func loginEmailKey(email string) string {
	return "al:" + email
}

func loginIPKey(ip string) string {
	return "ali:" + ip
}

func totpKey(accountID string) string {
	return "att:" + accountID
}
