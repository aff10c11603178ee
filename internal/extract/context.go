package extract

// Context is the hierarchy active at the current row.
type Context struct {
	Agency  string
	Bureau  string
	Account string
}

// EnterAgency starts a new agency and clears everything beneath it.
func (c *Context) EnterAgency(name string) {
	c.Agency = name
	c.Bureau = ""
	c.Account = ""
}

// EnterBureau sets the bureau and clears the account.
func (c *Context) EnterBureau(name string) {
	c.Bureau = name
	c.Account = ""
}

// EnterAccount sets the account, leaving agency and bureau untouched.
func (c *Context) EnterAccount(name string) {
	c.Account = name
}

// State is the extractor's position in the agency > bureau/account > program
// hierarchy.
type State uint8

const (
	// StateAgency expects a top-level agency label next.
	StateAgency State = iota
	// StateBureauOrAccount is inside an agency, before any program row.
	StateBureauOrAccount
	// StateProgram follows a program row.
	StateProgram
)

func (s State) String() string {
	switch s {
	case StateAgency:
		return "agency"
	case StateBureauOrAccount:
		return "bureau_or_account"
	case StateProgram:
		return "program"
	default:
		return "unknown"
	}
}
