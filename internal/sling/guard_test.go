package sling

import "testing"

func TestBlockedCommand(t *testing.T) {
	const agent = "builder-1"

	tests := []struct {
		name    string
		command string
		blocked bool
	}{
		{"plain build", "go build ./...", false},
		{"git status", "git status", false},
		{"commit", `git commit -m "work"`, false},
		{"reset hard", "git reset --hard HEAD~1", true},
		{"reset soft", "git reset --soft HEAD~1", false},
		{"checkout -b", "git checkout -b feature/x", true},
		{"switch -c", "git switch -c feature/x", true},
		{"checkout existing", "git checkout overstory/builder-1/t-1", false},
		{"push to main", "git push origin main", true},
		{"push to master", "git push origin master", true},
		{"push force to main", "git push --force origin main", true},
		{"push own branch", "git push origin overstory/builder-1/t-1", false},
		{"push foreign branch", "git push origin overstory/builder-2/t-9", true},
		{"push current branch", "git push", false},
		{"push remote only", "git push origin", false},
		{"push refspec targeting main", "git push origin overstory/builder-1/t-1:main", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, blocked := BlockedCommand(agent, tt.command)
			if blocked != tt.blocked {
				t.Errorf("BlockedCommand(%q) = %v (%s), want blocked=%v",
					tt.command, blocked, reason, tt.blocked)
			}
			if blocked && reason == "" {
				t.Error("blocked command must carry a reason")
			}
		})
	}
}
