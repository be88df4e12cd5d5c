package bot

const (
	msgUnauthorized   = "❌ You are not authorized to use this bot."
	msgRateLimited    = "⏰ Rate limit exceeded. Please wait before making more requests."
	msgUnknownCommand = "❌ Unknown command. Use /help to see available commands."

	msgSubscriptionsOff = "ℹ️ Repository subscriptions are disabled on this instance."
)

const msgWelcome = `🎯 **Welcome to the GitHub Relay Bot!** 🎯

🌟 **Profile & Discovery**
• ` + "`/profile [username]`" + ` - GitHub profile details
• ` + "`/repos [username]`" + ` - Repository collections
• ` + "`/search <query>`" + ` - Repository search

📈 **Repository Insights**
• ` + "`/repo <owner/repo>`" + ` - Project statistics and metrics
• ` + "`/commits <owner/repo>`" + ` - Recent commit history
• ` + "`/issues <owner/repo>`" + ` - Open issue tracking

🔔 **Real-Time Notifications**
• ` + "`/watch <owner/repo>`" + ` - Live updates for pushes, issues, PRs and releases
• ` + "`/unwatch <owner/repo>`" + ` - Stop notifications
• ` + "`/watching`" + ` - Your watch list

🛠️ **System**
• ` + "`/status`" + ` - Bot health and API quotas
• ` + "`/help`" + ` - Full command reference

🚀 Try ` + "`/profile torvalds`" + ` or ` + "`/repo microsoft/vscode`" + ` to get started!`

const msgHelp = `🔧 **GitHub Relay Bot - Command Reference**

👤 **Profile & User Information**
• ` + "`/profile [username]`" + ` - Account stats, bio, location and join date

📚 **Repository Exploration**
• ` + "`/repos [username]`" + ` - Repository list with star counts
• ` + "`/repo <owner/repo>`" + ` - Full project statistics and metadata

📊 **Development Insights**
• ` + "`/commits <owner/repo>`" + ` - Recent commits with authors and links
• ` + "`/issues <owner/repo>`" + ` - Open issues with state and links

🔍 **Search & Discovery**
• ` + "`/search <query>`" + ` - Repository search sorted by stars

🔔 **Notification System**
• ` + "`/watch <owner/repo>`" + ` - Notifications for pushes, issues, PRs, releases
• ` + "`/unwatch <owner/repo>`" + ` - Disable notifications for a repository
• ` + "`/watching`" + ` - View your watch list

⚙️ **System & Monitoring**
• ` + "`/status`" + ` - API quotas, configuration and uptime

📝 **Examples**
• ` + "`/profile torvalds`" + `
• ` + "`/repo microsoft/vscode`" + `
• ` + "`/commits facebook/react`" + `
• ` + "`/search machine learning python`" + `

💡 Always use full repository names: ` + "`owner/repository`" + `.
Rate limiting: %d requests per %d seconds per chat.`
