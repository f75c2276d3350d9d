package git

// Runner is the interface for git operations needed by the orchestrator.
// The production implementation shells out; tests may substitute a fake.
type Runner interface {
	Run(args ...string) (string, error)
	CurrentBranch() (string, error)
	CheckoutBranch(name string) error
	BranchExists(name string) (bool, error)
	DeleteBranch(name string) error
	Status() (string, error)
	Add(paths ...string) error
	Commit(message string) error
	Merge(branch string) error
	MergeAbort() error
	MergeInProgress() bool
	UnmergedFiles() ([]string, error)
	ChangedFilesRelative(branch, relativeTo string) ([]string, error)
	ShowFile(ref, path string) (string, error)
	WorktreeAdd(path, branch, base string) error
	WorktreeRemove(path string, force bool) error
	WorktreeList() ([]string, error)
	WorktreePrune() error
}
