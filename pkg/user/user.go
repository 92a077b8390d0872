package user

type User struct {
	Id          int
	Uid         string
	Username    string
	DisplayName string
	Settings    Settings
}

type Settings struct {
	// Timezone is an IANA zone name. Synced events are expressed in it.
	Timezone string
}

const DefaultTimezone = "UTC"
