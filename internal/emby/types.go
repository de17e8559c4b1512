package emby

// Session is one entry from the live session list. Only fields we need.
type Session struct {
	ID             string `json:"Id"`
	UserID         string `json:"UserId"`
	UserName       string `json:"UserName"`
	Client         string `json:"Client"`
	DeviceName     string `json:"DeviceName"`
	RemoteEndPoint string `json:"RemoteEndPoint"`
	NowPlayingItem *Item  `json:"NowPlayingItem,omitempty"`
}

// Item is a library item (movie, episode, series, ...).
type Item struct {
	ID                string  `json:"Id"`
	Name              string  `json:"Name"`
	Type              string  `json:"Type"`
	Overview          string  `json:"Overview"`
	ProductionYear    int     `json:"ProductionYear"`
	CommunityRating   float64 `json:"CommunityRating"`
	OfficialRating    string  `json:"OfficialRating"`
	SeriesName        string  `json:"SeriesName"`
	ParentIndexNumber int     `json:"ParentIndexNumber"`
	IndexNumber       int     `json:"IndexNumber"`
	RunTimeTicks      int64   `json:"RunTimeTicks"`
	ImageTags         struct {
		Primary string `json:"Primary"`
	} `json:"ImageTags"`
}

// HasPrimaryImage reports whether the item carries a primary image tag.
func (i *Item) HasPrimaryImage() bool {
	return i != nil && i.ImageTags.Primary != ""
}

// User is an Emby account as returned by /Users.
type User struct {
	ID       string     `json:"Id"`
	Name     string     `json:"Name"`
	Policy   UserPolicy `json:"Policy"`
	LastSeen string     `json:"LastActivityDate"`
}

// UserPolicy is the subset of the account policy we read and write.
type UserPolicy struct {
	IsAdministrator bool `json:"IsAdministrator"`
	IsDisabled      bool `json:"IsDisabled"`
	IsHidden        bool `json:"IsHidden"`
}

// Task is a scheduled task on the media server.
type Task struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State string `json:"State"`
}
