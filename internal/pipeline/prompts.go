package pipeline

// Prompt templates. Each instructs the model to return bare JSON; the
// extractor still tolerates code fences because models do not always comply.

const qualityScorePrompt = `You are an expert resume reviewer.

Resume:
%s

TASK:
Evaluate resume quality on a scale of 0-100.

Return ONLY valid JSON:

{
  "clarity": 0,
  "skills": 0,
  "format": 0,
  "overall": 0
}`

const resumeSkillsPrompt = `Extract technical and professional skills from the resume.

Resume:
%s

Return ONLY valid JSON:
{
  "skills": ["Python", "AWS", "Docker"]
}`

const jdSkillsPrompt = `Extract required skills from the job description.

Job Description:
%s

Return ONLY valid JSON:
{
  "skills": ["Kubernetes", "Terraform", "CI/CD"]
}`

const screeningPrompt = `You are an expert AI recruiter.

Job Description:
%s

Candidate Resume:
%s

TASK:
1. Evaluate if the candidate is a match for the job (Selected/Rejected).
2. Provide a score (0-100) based on skills, experience, and relevance.
3. Provide a brief reason for the decision.

Return ONLY valid JSON:
{
  "decision": {
    "selected": true,
    "reason": "Strong match with AWS and Python experience."
  },
  "score": {
    "overall": 85
  }
}`

const generateResumePrompt = `You are an expert resume writer. Use the provided profile description to create a comprehensive, professional resume.

Profile Description:
%s

TASK:
Generate a professional resume including:
- Contact Information (use placeholders if missing)
- Professional Summary
- Key Skills
- Work Experience (elaborate on bullet points)
- Education

Return ONLY valid JSON with the following structure:
{
  "contact": { "name": "...", "email": "...", "phone": "...", "location": "...", "linkedin": "..." },
  "summary": "...",
  "skills": ["...", "..."],
  "experience": [
    {
      "title": "...",
      "company": "...",
      "period": "...",
      "bullets": ["...", "..."]
    }
  ],
  "education": [
    {
      "degree": "...",
      "school": "...",
      "year": "..."
    }
  ]
}`

const profileParsePrompt = `Extract structured resume data from LinkedIn profile text.

Profile:
%s

Return ONLY valid JSON:
{
  "name": "",
  "headline": "",
  "experience": [],
  "skills": [],
  "education": []
}`

const resumeWritePrompt = `You are a professional resume writer.

Convert the following parsed LinkedIn profile data into a structured resume format.

Profile Data:
%s

Return ONLY valid JSON with this exact structure:
{
  "contact": {
    "name": "",
    "email": "",
    "phone": "",
    "location": ""
  },
  "summary": "Professional summary...",
  "skills": ["Skill 1", "Skill 2"],
  "experience": [
    {
      "title": "Job Title",
      "company": "Company Name",
      "period": "Start Date - End Date",
      "bullets": ["Achievement 1", "Achievement 2"]
    }
  ],
  "education": [
    {
      "degree": "Degree Name",
      "school": "University Name",
      "year": "Year"
    }
  ]
}`
