// Package prompt holds the instructions that wrap a user task before it is
// sent to the model.
package prompt

import "strings"

// DefaultTask is used when no task is given on the command line.
const DefaultTask = `Create a Next.js app that displays "Hello, World!" on the homepage styled with Tailwind CSS.`

// AppDir is the project folder inside the sandbox image.
const AppDir = "/blaxel/app"

const instructions = `
You are an expert Next.js developer.

You have access to a sandboxed environment which contains a skeleton Next.js 16 project. The project folder is ` + AppDir + `

You have access to tools that allow you to read and write files, list directories and run commands in the sandbox.

Build a working Next.js app based on the task below.

What to build:
- Use Next.js 16 with React and TypeScript
- Use Tailwind CSS for styling
- Make it look good and work well
- Make it responsive (works on mobile and desktop)

How to complete the task:
1. Investigate the file structure of the application in ` + AppDir + `
2. Write your code files to ` + AppDir + `
3. Run "npm install" if you need new packages
4. Run "npm run build" when you are done. Fix any errors you encounter. Continue to do this until the build succeeds.
5. Check if the dev server is running. If not, start the dev server: "npm run dev -- --hostname 0.0.0.0 --port 3000"
6. Keep the dev server running after you complete the task

Don't say you're done until the code files are written and the dev server is running successfully.

Your task is: `

// Build wraps task in the agent instructions.
func Build(task string) string {
	return instructions + task + "\n"
}

// TaskFromArgs joins command line words into a task, falling back to
// DefaultTask when none are given.
func TaskFromArgs(args []string) string {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		return DefaultTask
	}
	return task
}
